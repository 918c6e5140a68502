package main

import (
	"fmt"
	"os"

	"dex/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dexctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
