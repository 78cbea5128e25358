// Command ncagg runs the ncagg aggregation engine from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/5tefan/ncagg/ncaggutil"
)

func main() {
	if err := ncaggutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
