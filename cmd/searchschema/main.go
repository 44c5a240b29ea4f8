// Package main provides the entry point for the searchschema CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/searchschema/cmd/searchschema/cmd"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, schemaerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
