package main

import (
	"os"

	"github.com/mailfleet/mailfleet/pkg/mailctl"
)

func main() {
	if err := mailctl.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
