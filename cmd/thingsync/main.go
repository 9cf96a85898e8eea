package main

import (
	"os"

	"github.com/thingsync/thingsync/internal/adapters/driving/cli"
)

func main() {
	os.Exit(cli.Execute())
}
