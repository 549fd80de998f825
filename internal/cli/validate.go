package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/registry"
)

// ValidationOutput holds the validate command's result.
type ValidationOutput struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	BoundedSQL string   `json:"bounded_sql,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a SQL statement against the schema whitelist",
		Long: `Run a statement through the post-hoc validator and the limit enforcer without
executing it. Exits non-zero when the statement is rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := registry.New(rootOpts.SchemaDir)
			schema, err := schemas.Get(rootOpts.SchemaName)
			if err != nil {
				return err
			}

			out := ValidationOutput{}
			out.Valid, out.Violations = domain.ValidateSQL(args[0], schema)
			if out.Valid {
				_, out.BoundedSQL, _ = domain.EnforceLimit(args[0], schema.DefaultLimit, schema.MaxLimit)
			}

			switch rootOpts.Format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			default:
				if out.Valid {
					fmt.Fprintf(cmd.OutOrStdout(), "valid\n%s\n", out.BoundedSQL)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "invalid\n  %s\n", strings.Join(out.Violations, "\n  "))
				}
			}

			if !out.Valid {
				return fmt.Errorf("validation failed: %s", strings.Join(out.Violations, ", "))
			}
			return nil
		},
	}
}
