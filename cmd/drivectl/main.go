// drivectl - command line client for the drive services
package main

import (
	"os"

	"github.com/rescale/drivectl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
