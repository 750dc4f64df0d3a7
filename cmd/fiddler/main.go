// Command fiddler runs configuration-driven message pipelines: lint a
// config, run it, or exercise its fixture-driven tests.
package main

import (
	"fmt"
	"os"

	"github.com/rc1405/fiddler/internal/cli"
)

func main() {
	if err := cli.NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
