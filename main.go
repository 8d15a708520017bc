package main

import (
	"os"

	"github.com/olbridge/olbridge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
