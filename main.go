package main

import (
	"os"

	"github.com/askdb/askdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
