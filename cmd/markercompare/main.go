// Command markercompare ingests marker reports, stores them in date tables
// and runs blood-relation comparisons from the command line or over HTTP.
package main

import (
	"fmt"
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
	}
}
