// Package main is the entry point for the xraysync connector CLI.
package main

import (
	"xraysync/connector/cmd"
)

// main initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
