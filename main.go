package main

import (
	"os"

	"github.com/shortmark/shortmark/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
