package main

import (
	"os"

	"mediamanifest/cmd/mm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
