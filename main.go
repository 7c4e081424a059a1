package main

import (
	"os"

	"github.com/partvault/partvault/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
