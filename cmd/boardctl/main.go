// Command boardctl drives a project board from the terminal: it partitions
// the backend's tasks and applies moves with the same optimistic sync as the
// board API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
