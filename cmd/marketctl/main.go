// Command marketctl is the marketplace client.
package main

import (
	"fmt"
	"os"

	"github.com/procateodor/blockchain-marketplace/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
