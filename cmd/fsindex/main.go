// Command fsindex is a thin CLI over the indexing manager and hybrid
// search engine: index a tree, watch it for changes, and query it.
package main

import (
	"fmt"
	"os"

	"github.com/fsindex/fsindex/cmd/fsindex/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
