// filescout indexes local folders and answers questions about their
// contents using a local Ollama model.
package main

import (
	"os"

	"github.com/filescout/filescout/cmd/filescout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
