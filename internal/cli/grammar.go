package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/registry"
)

// NewGrammarCommand creates the grammar command.
func NewGrammarCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grammar",
		Short: "Print the compiled generation grammar for a schema",
		Long: `Compile the schema into the Lark grammar handed to the constrained text
generator and print it. The output is deterministic for a given schema.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := registry.New(rootOpts.SchemaDir)
			schema, err := schemas.Get(rootOpts.SchemaName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), domain.CompileGrammar(schema))
			return nil
		},
	}
}
