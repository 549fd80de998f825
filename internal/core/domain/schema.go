package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSchema = errors.New("invalid schema definition")

// numericTypePrefixes classifies column types that accept bare numeric
// equality filters. Matched case-insensitively against the declared type.
var numericTypePrefixes = []string{"int", "uint", "float", "decimal"}

const (
	defaultLimitFallback = 100
	maxLimitFallback     = 1000
)

// ColumnDef describes a single column of the allowed table.
type ColumnDef struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Aggregatable  bool     `json:"aggregatable,omitempty"`
	Groupable     bool     `json:"groupable,omitempty"`
	Filterable    bool     `json:"filterable,omitempty"`
	IsDatetime    bool     `json:"is_datetime,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// SchemaDefinition is the single source of truth for one analytical table.
// Both the grammar compiler and the SQL validator derive their whitelists
// from its projection methods, so the two enforcement layers cannot drift.
//
// A SchemaDefinition is immutable after construction: it is loaded once,
// cached, and only ever replaced wholesale.
type SchemaDefinition struct {
	Table               string      `json:"table"`
	Columns             []ColumnDef `json:"columns"`
	DatetimeColumn      string      `json:"datetime_column"`
	SupportedAggregates []string    `json:"supported_aggregates"`
	DefaultLimit        int         `json:"default_limit"`
	MaxLimit            int         `json:"max_limit"`
}

// ParseSchemaDefinition decodes and validates a schema JSON document.
// There is no partial parse: any structural problem fails the whole load.
func ParseSchemaDefinition(data []byte) (*SchemaDefinition, error) {
	var s SchemaDefinition
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON: %w", ErrInvalidSchema, err)
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = defaultLimitFallback
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = maxLimitFallback
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the structural invariants a loaded schema must hold.
func (s *SchemaDefinition) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidSchema)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: column with empty name", ErrInvalidSchema)
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate column name %q", ErrInvalidSchema, col.Name)
		}
		seen[key] = true
	}
	if s.DatetimeColumn == "" {
		return fmt.Errorf("%w: datetime_column is required", ErrInvalidSchema)
	}
	if !s.HasColumn(s.DatetimeColumn) {
		return fmt.Errorf("%w: datetime_column %q is not a declared column", ErrInvalidSchema, s.DatetimeColumn)
	}
	if len(s.SupportedAggregates) == 0 {
		return fmt.Errorf("%w: supported_aggregates must not be empty", ErrInvalidSchema)
	}
	if s.DefaultLimit <= 0 || s.MaxLimit <= 0 {
		return fmt.Errorf("%w: limits must be positive (default_limit=%d, max_limit=%d)", ErrInvalidSchema, s.DefaultLimit, s.MaxLimit)
	}
	if s.DefaultLimit > s.MaxLimit {
		return fmt.Errorf("%w: default_limit %d exceeds max_limit %d", ErrInvalidSchema, s.DefaultLimit, s.MaxLimit)
	}
	return nil
}

// HasColumn reports whether name matches a declared column, case-insensitively.
func (s *SchemaDefinition) HasColumn(name string) bool {
	for _, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return true
		}
	}
	return false
}

// ColumnNames returns all column names in declaration order.
func (s *SchemaDefinition) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		names = append(names, col.Name)
	}
	return names
}

// AggregatableColumns returns columns usable inside aggregate functions.
func (s *SchemaDefinition) AggregatableColumns() []string {
	return s.columnsWhere(func(c ColumnDef) bool { return c.Aggregatable })
}

// GroupableColumns returns columns usable in GROUP BY.
func (s *SchemaDefinition) GroupableColumns() []string {
	return s.columnsWhere(func(c ColumnDef) bool { return c.Groupable })
}

// FilterableColumns returns columns usable in WHERE predicates.
func (s *SchemaDefinition) FilterableColumns() []string {
	return s.columnsWhere(func(c ColumnDef) bool { return c.Filterable })
}

// FilterableStringColumns returns filterable string columns that declare an
// allowed-values list; only these may appear in string equality filters.
func (s *SchemaDefinition) FilterableStringColumns() []string {
	return s.columnsWhere(func(c ColumnDef) bool {
		return c.Filterable && len(c.AllowedValues) > 0 && hasTypePrefix(c.Type, "string")
	})
}

// FilterableNumericColumns returns filterable columns of a numeric type.
func (s *SchemaDefinition) FilterableNumericColumns() []string {
	return s.columnsWhere(func(c ColumnDef) bool {
		return c.Filterable && isNumericType(c.Type)
	})
}

// FilterValues returns every allowed literal of every filterable string
// column, in declaration order. Used to whitelist equality-filter literals.
func (s *SchemaDefinition) FilterValues() []string {
	var values []string
	for _, col := range s.Columns {
		if col.Filterable && len(col.AllowedValues) > 0 && hasTypePrefix(col.Type, "string") {
			values = append(values, col.AllowedValues...)
		}
	}
	return values
}

// DatetimeColumns returns all columns marked is_datetime, falling back to
// the primary datetime column when none are marked.
func (s *SchemaDefinition) DatetimeColumns() []string {
	cols := s.columnsWhere(func(c ColumnDef) bool { return c.IsDatetime })
	if len(cols) == 0 {
		return []string{s.DatetimeColumn}
	}
	return cols
}

// ColumnType returns the declared type of a column, matched case-insensitively.
func (s *SchemaDefinition) ColumnType(name string) (string, bool) {
	for _, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return col.Type, true
		}
	}
	return "", false
}

// AllowedValues returns the declared literal whitelist of a column, or nil.
func (s *SchemaDefinition) AllowedValues(name string) []string {
	for _, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return col.AllowedValues
		}
	}
	return nil
}

// PromptContext renders the schema as a context block for the NL-to-SQL
// generation prompt.
func (s *SchemaDefinition) PromptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", s.Table)
	b.WriteString("Columns:\n")
	for _, col := range s.Columns {
		fmt.Fprintf(&b, "  - %s (%s): %s", col.Name, col.Type, col.Description)
		if len(col.AllowedValues) > 0 {
			fmt.Fprintf(&b, " [allowed: %s]", strings.Join(col.AllowedValues, ", "))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nDatetime column for time filters: %s\n", s.DatetimeColumn)
	fmt.Fprintf(&b, "Supported aggregates: %s\n", strings.Join(s.SupportedAggregates, ", "))
	fmt.Fprintf(&b, "Max result limit: %d", s.MaxLimit)
	return b.String()
}

func (s *SchemaDefinition) columnsWhere(keep func(ColumnDef) bool) []string {
	var names []string
	for _, col := range s.Columns {
		if keep(col) {
			names = append(names, col.Name)
		}
	}
	return names
}

func isNumericType(t string) bool {
	for _, prefix := range numericTypePrefixes {
		if hasTypePrefix(t, prefix) {
			return true
		}
	}
	return false
}

func hasTypePrefix(t, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(t), prefix)
}
