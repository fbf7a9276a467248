package main

import (
	"os"

	"github.com/zero-models/zerogen/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
