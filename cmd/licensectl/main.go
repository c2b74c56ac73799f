// Command licensectl runs report exports and job triggers from the shell.
package main

import (
	"os"

	"github.com/licenseops/licenseops/cmd/licensectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
