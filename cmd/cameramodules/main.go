package main

import (
	"os"

	"cameramodules/cmd/cameramodules/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
