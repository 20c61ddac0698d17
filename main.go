package main

import (
	"os"

	"github.com/drawbridge-sh/drawbridge/cmd"
	"github.com/drawbridge-sh/drawbridge/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
