package main

import (
	"os"

	"github.com/thetalab/harvester/cmd/harvester/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
