// Command rh is the rockhound CLI: an offline-first catalog of
// field finds with queued AI identification and remote sync.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
