// Command tysttext runs the desktop host and controls a running one.
package main

import (
	"os"

	"github.com/tysttext/host/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
