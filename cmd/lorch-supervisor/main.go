// Command lorch-supervisor is the operator CLI for inspecting and
// maintaining the session registry and workspace directories the
// supervisor manages: registry list, registry show, and workspace gc.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
