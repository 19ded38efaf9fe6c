package main

import (
	"os"

	"github.com/sfenos/neba/cli"
)

func main() {
	os.Exit(cli.Execute())
}
