package main

import (
	"fmt"
	"os"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
