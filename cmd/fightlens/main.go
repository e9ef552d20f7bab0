package main

import (
	"fmt"
	"os"

	"github.com/ahrav/go-fightlens/cmd/fightlens/cmd"
)

// Version information, set at build time.
var version = "dev"

func main() {
	root := cmd.NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
