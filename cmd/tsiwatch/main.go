package main

import (
	"os"

	"TSIWatch/cmd/tsiwatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
