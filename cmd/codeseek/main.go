// Package main provides the entry point for the codeseek CLI.
package main

import (
	"os"

	"github.com/seekstack/codeseek/cmd/codeseek/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
