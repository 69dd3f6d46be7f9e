package main

import (
	"os"

	"github.com/orchestra-mcp/listsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
