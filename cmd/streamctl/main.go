package main

import (
	"os"

	"github.com/gyaneshwarpardhi/tokenstream/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
