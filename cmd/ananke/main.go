package main

import (
	"os"

	"github.com/doubleverify/ananke/cmd/ananke/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
