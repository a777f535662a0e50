// Command sagaflow runs the sample commerce workflows and a queue worker.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
