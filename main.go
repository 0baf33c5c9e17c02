package main

import (
	"os"

	"github.com/coldvault/agent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
