// Package main provides the entry point for the rehydrate CLI.
package main

import (
	"os"

	"github.com/TheMonk2121/rehydrate/cmd/rehydrate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
