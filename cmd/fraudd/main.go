package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	root := buildRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errUnloaded) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
}
