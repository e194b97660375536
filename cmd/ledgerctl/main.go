// Command ledgerctl computes, verifies and appends progress ledger records from
// the command line.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openPostgresBackend).Execute(); err != nil {
		if !errors.Is(err, errChainBroken) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 1 for a broken chain and 2 for any other failure.
func exitCode(err error) int {
	if errors.Is(err, errChainBroken) {
		return 1
	}
	return 2
}
