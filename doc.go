/*
Package main is an application package for the Findy wallet tool. The
findy-wallet stores the records of DI agents in wallets. A wallet is opened
from one of the pluggable backends:

	default  a wallet on the local store of its own
	virtual  a tenant of a shared wallet, isolated by the virtual wallet ID
	remote   a tenant of a wallet service, records are read and written over REST

The local stores are bbolt, SQLite, PostgreSQL and Redis.

# About the build-in CLI

The compilation includes the command set to create and delete wallets, to
read and write their records, and to run the remote wallet service.

	findy-wallet wallet create --wallet-name agency --wallet-key ...
	findy-wallet record list --wallet-name agency --wallet-key ... --type claim
	findy-wallet service start --wallet-name service --wallet-key ...

The flags can be given as FWALLET_ prefixed environment variables or in a
config file.

# Sub-packages

findy-wallet can be used as a library, a service and a CLI tool. It's
structured to the following sub-packages:

	agent    includes the storage, wallet, filter, registry and expiry packages
	cmds     implements the commands of the CLI without the flag handling
	cmd      is the cobra CLI
	server   implements the REST wallet service for the remote backend
*/
package main
