package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// An interrupt already ended the command; don't echo it.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "ferry: %v\n", err)
		}
		os.Exit(1)
	}
}
