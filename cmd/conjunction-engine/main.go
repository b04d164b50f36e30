// Package main is the entry point for the conjunction analysis engine.
package main

import (
	"os"

	"github.com/signalsfoundry/conjunction-engine/cmd/conjunction-engine/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
