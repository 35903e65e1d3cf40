// Package completionhelp helps the shell completion of the CLI flags.
package completionhelp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// walletExts are the file extensions of the bolt and sqlite wallets.
var walletExts = []string{".bolt", ".db"}

// WalletLocations returns the default wallet directory.
func WalletLocations() []string {
	return []string{utils.DataDir()}
}

// WalletNames returns the names of the file based wallets in the dir. The
// default directory is used when the dir is empty. Errors are printed to
// stderr because the completion has no other way to report them.
func WalletNames(dir string) (names []string) {
	defer err2.Catch(err2.Err(func(err error) {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}))

	if dir == "" {
		dir = WalletLocations()[0]
	}
	entries := try.To1(os.ReadDir(dir))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, we := range walletExts {
			if ext == we {
				names = append(names, strings.TrimSuffix(e.Name(), ext))
			}
		}
	}
	sort.Strings(names)
	return names
}
