package port

import (
	"context"

	"github.com/guillermoBallester/causeway/internal/core/domain"
)

// QueryExecutor runs validated, limit-bounded SQL against the remote
// analytical engine.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*domain.QueryResult, error)
}
