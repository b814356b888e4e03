package main

import "os"

// main stays slim: flag parsing and dispatch live in the root command,
// business logic in the internal packages.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
