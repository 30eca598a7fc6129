// Package main is the entry point for the promptvid application.
package main

import (
	"os"

	"github.com/jmylchreest/promptvid/cmd/promptvid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
