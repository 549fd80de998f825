package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guillermoBallester/causeway/internal/adapter/openai"
	"github.com/guillermoBallester/causeway/internal/evals"
	"github.com/guillermoBallester/causeway/internal/registry"
)

type evalFlags struct {
	casesPath string
	timeout   time.Duration
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &evalFlags{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the eval suite against the live generator",
		Long: `Generate SQL for every case in the suite and score schema correctness,
intent patterns, and determinism. Requires OPENAI_API_KEY; nothing is executed
against the data engine.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, rootOpts, flags)
		},
	}

	cmd.Flags().StringVar(&flags.casesPath, "cases", "evals/cases.yaml", "path to the YAML case suite")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "per-generation timeout")

	return cmd
}

func runEval(cmd *cobra.Command, rootOpts *RootOptions, flags *evalFlags) error {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	cases, err := evals.LoadCases(flags.casesPath)
	if err != nil {
		return err
	}

	schemas := registry.New(rootOpts.SchemaDir)
	schema, err := schemas.Get(rootOpts.SchemaName)
	if err != nil {
		return err
	}

	generator, err := openai.NewGenerator(apiKey, os.Getenv("OPENAI_MODEL"), os.Getenv("OPENAI_BASE_URL"), flags.timeout)
	if err != nil {
		return err
	}

	runner := evals.NewRunner(generator, schema)
	reports := runner.RunAll(cmd.Context(), cases)

	switch rootOpts.Format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	default:
		for _, report := range reports {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d passed\n", report.Name, report.Passed, report.Passed+report.Failed)
			for _, res := range report.Results {
				status := "PASS"
				if !res.Passed {
					status = "FAIL"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s", status, res.ID)
				if res.SQL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s", res.SQL)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				for _, e := range res.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "         %s\n", e)
				}
			}
		}
	}

	for _, report := range reports {
		if report.Failed > 0 {
			return fmt.Errorf("%d eval case(s) failed", totalFailed(reports))
		}
	}
	return nil
}

func totalFailed(reports []evals.Report) int {
	n := 0
	for _, r := range reports {
		n += r.Failed
	}
	return n
}
