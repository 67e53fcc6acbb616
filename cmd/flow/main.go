package main

import (
	"fmt"
	"os"

	app "github.com/valter-silva-au/flow/internal"
	"github.com/valter-silva-au/flow/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	a, err := app.NewApp(app.ResolveBasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing flow: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	_ = a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
