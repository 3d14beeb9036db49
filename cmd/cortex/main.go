// Command cortex inspects the available backends, cross-checks their primitives
// and benchmarks them.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
