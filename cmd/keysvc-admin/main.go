// Package main is the entry point for the keysvc-admin command-line tool.
package main

import (
	"github.com/crewbill/keysvc/cmd/cli"
)

func main() {
	cli.Execute()
}
