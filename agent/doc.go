/*
Package agent is a package for the wallet storage of the DI agents. It holds
all the needed packages to store, find and share agent records. The
registry.Registry is the most important abstraction of the package. It opens
the wallets from the backends of the wallet package and keeps track of the
open handles.

The storage package has the record store API and its bolt, SQL and Redis
implementations. The filter package builds the tag filters of the credential
queries, and the expiry package sweeps the expired records away.

The agent package is empty itself. All the functionality is inside
sub-packages.
*/
package agent
