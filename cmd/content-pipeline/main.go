package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if !errors.Is(err, commands.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
