// Package utils has small helpers shared by the CLI and the service.
package utils

import (
	"os"
	"os/user"
	"path/filepath"
)

// HomeDir returns $HOME or the home of the current user.
func HomeDir() string {
	if v := os.Getenv("HOME"); v != "" {
		return v
	}
	currentUser, err := user.Current()
	if err != nil {
		panic(err)
	}
	return currentUser.HomeDir
}

// DataDir is the default directory of the local wallet files.
func DataDir() string {
	return filepath.Join(HomeDir(), ".findy", "wallet")
}
