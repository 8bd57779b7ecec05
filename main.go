package main

import (
	"os"

	"github.com/eduverse-labs/eduverse/src/cli"
	_ "github.com/eduverse-labs/eduverse/src/migration"
)

func main() {
	if err := cli.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
