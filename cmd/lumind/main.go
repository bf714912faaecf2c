// Package main is the entry point for the lumin media server.
package main

import (
	"os"

	"github.com/lumin-project/lumin/cmd/lumind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
