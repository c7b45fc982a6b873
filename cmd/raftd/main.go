// Command raftd runs a single node of a replicated log cluster.
package main

import (
	"fmt"
	"os"

	"github.com/cliyu/ferrous-raft/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
