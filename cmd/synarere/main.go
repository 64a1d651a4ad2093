// Command synarere runs the IRC bot.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/synarere/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "synarere:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
