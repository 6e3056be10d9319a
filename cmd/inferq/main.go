package main

import (
	"os"

	"github.com/psilva81/inferq/cmd/inferq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
