// Command docflow is the operator CLI for the document pipeline.
package main

import (
	"log/slog"
	"os"

	"github.com/Lllllllleong/pageflow/cmd/docflow/commands"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
