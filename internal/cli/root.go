// Package cli wires the causeway commands: serve the API, print a compiled
// grammar, validate a statement by hand, or run the eval suite.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	SchemaDir  string
	SchemaName string
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the causeway CLI.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "causeway",
		Short:   "Natural language to schema-bound ClickHouse SQL",
		Long:    "causeway converts natural-language questions into SQL constrained to one analytical table,\nwith grammar-constrained generation and independent post-hoc validation.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.SchemaDir, "schema-dir", "schemas", "directory holding <name>.json schema files")
	cmd.PersistentFlags().StringVar(&opts.SchemaName, "schema", "trips", "schema name to load")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts, version))
	cmd.AddCommand(NewGrammarCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
