package domain

// QueryResult holds the outcome of executing a validated query against the
// remote engine.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"data"`
	RowCount  int              `json:"row_count"`
	ElapsedMS float64          `json:"elapsed_ms"`
}
