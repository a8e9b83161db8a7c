package main

import (
	"os"

	"github.com/moonapp-tools/mooncoin-cli/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
