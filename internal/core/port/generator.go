package port

import "context"

// SQLGenerator turns a natural-language question into SQL text, constrained
// by the supplied grammar. Whatever it returns is untrusted and must pass
// the validator before execution.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question, grammar, schemaContext string) (string, error)
}
