// Veil is a reversible PII anonymization service.
package main

import (
	"os"

	"github.com/dativo-io/veil/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
