// Command quoteboard streams level-one quotes into an in-memory snapshot
// store and renders them as a terminal board.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
