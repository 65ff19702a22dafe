package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		if code == exitFatal || code == exitNoCommand {
			fmt.Fprintf(os.Stderr, "workspace-launcher: %v\n", err)
		}
		os.Exit(code)
	}
}
