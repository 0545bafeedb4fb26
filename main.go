package main

import (
	"os"

	"github.com/ncharlet/bessopt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
