// Package main provides the entry point for the unifind CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/unifind/cmd/unifind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
