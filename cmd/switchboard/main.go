// Package main provides the switchboard daemon and its operational
// commands.
package main

import (
	"os"

	"github.com/jschaf/switchboard/cmd/switchboard/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
