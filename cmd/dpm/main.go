package main

import (
	"os"

	"dpm/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
