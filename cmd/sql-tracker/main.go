// sql-tracker normalizes SQL statements into fingerprints and aggregates how
// often and how long each one runs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
