package domain

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Administrative and mutating keywords that make a statement unsafe no matter
// what the parser would say about it. Matched as whole words after comments
// have been stripped, so they cannot be hidden inside comment text.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "create", "alter",
	"truncate", "grant", "revoke", "attach", "detach",
	"rename", "optimize", "kill", "system", "admin",
}

var (
	commentRe   = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/`)
	forbiddenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

	// ClickHouse allows a bare quantity in interval arithmetic
	// (INTERVAL 24 HOUR); the PostgreSQL grammar wants the quoted form
	// (INTERVAL '24 HOUR'). The grammar compiler only ever emits the bare
	// form with these fixed units, so the rewrite set is closed.
	bareIntervalRe = regexp.MustCompile(`(?i)\bINTERVAL\s+([0-9]+)\s+(SECOND|MINUTE|HOUR|DAY|WEEK|MONTH)S?\b`)
)

// ValidateSQL checks arbitrary SQL text against the schema whitelist,
// independently of the generation-time grammar. It never returns an error:
// malformed or unsafe input is reported through the violations list, and the
// statement is valid only when that list is empty.
func ValidateSQL(sql string, schema *SchemaDefinition) (bool, []string) {
	cleaned := stripComments(sql)

	// A forbidden keyword is disqualifying on its own; don't bother parsing.
	if matches := forbiddenRe.FindAllString(cleaned, -1); len(matches) > 0 {
		violations := make([]string, 0, len(matches))
		seen := make(map[string]bool, len(matches))
		for _, kw := range matches {
			upper := strings.ToUpper(kw)
			if !seen[upper] {
				seen[upper] = true
				violations = append(violations, "forbidden keyword: "+upper)
			}
		}
		return false, violations
	}

	tree, err := pg_query.Parse(normalizeIntervals(cleaned))
	if err != nil {
		return false, []string{fmt.Sprintf("parse error: %v", err)}
	}
	if len(tree.Stmts) == 0 {
		return false, []string{"empty query"}
	}
	if len(tree.Stmts) > 1 {
		return false, []string{"only a single statement is allowed"}
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return false, []string{"empty query"}
	}
	if _, ok := stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		return false, []string{"only SELECT statements are allowed"}
	}

	var refs sqlRefs
	collectRefs(stmt.ProtoReflect(), &refs)

	var violations []string
	for _, table := range refs.tables {
		if !strings.EqualFold(table, schema.Table) {
			violations = append(violations, "invalid table: "+table)
		}
	}
	for _, column := range refs.columns {
		if column == "*" {
			continue
		}
		if !schema.HasColumn(column) {
			violations = append(violations, "invalid column: "+column)
		}
	}

	return len(violations) == 0, violations
}

// sqlRefs accumulates every table and column reference found in a parse tree.
type sqlRefs struct {
	tables  []string
	columns []string
}

// collectRefs walks the full protobuf parse tree and records every RangeVar
// and ColumnRef it reaches, regardless of nesting depth. Subqueries,
// expressions, and every clause are covered because the walk descends into
// all populated message fields.
func collectRefs(m protoreflect.Message, refs *sqlRefs) {
	switch node := m.Interface().(type) {
	case *pg_query.RangeVar:
		refs.tables = append(refs.tables, node.Relname)
	case *pg_query.ColumnRef:
		qualifiers, column, star := splitColumnRef(node)
		// A table qualifier on a column is a table reference too.
		refs.tables = append(refs.tables, qualifiers...)
		if star {
			refs.columns = append(refs.columns, "*")
		} else if column != "" {
			refs.columns = append(refs.columns, column)
		}
		return
	}

	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			// The pg_query AST carries no map fields.
		case fd.IsList():
			if fd.Kind() == protoreflect.MessageKind {
				list := v.List()
				for i := 0; i < list.Len(); i++ {
					collectRefs(list.Get(i).Message(), refs)
				}
			}
		case fd.Kind() == protoreflect.MessageKind:
			collectRefs(v.Message(), refs)
		}
		return true
	})
}

// splitColumnRef separates a ColumnRef's name parts: leading identifiers
// qualify the table, the final identifier names the column, and A_Star is
// the wildcard.
func splitColumnRef(ref *pg_query.ColumnRef) (qualifiers []string, column string, star bool) {
	fields := ref.GetFields()
	for i, field := range fields {
		if s := field.GetString_(); s != nil {
			if i == len(fields)-1 {
				column = s.Sval
			} else {
				qualifiers = append(qualifiers, s.Sval)
			}
			continue
		}
		if field.GetAStar() != nil {
			star = true
		}
	}
	return qualifiers, column, star
}

// stripComments removes line and block comments so keywords cannot hide in
// them. Comments are replaced with a space to avoid fusing adjacent tokens.
func stripComments(sql string) string {
	return commentRe.ReplaceAllString(sql, " ")
}

// normalizeIntervals rewrites ClickHouse's bare interval arithmetic into the
// quoted spelling the PostgreSQL grammar accepts. Purely syntactic; anything
// the parser still cannot read is rejected downstream.
func normalizeIntervals(sql string) string {
	return bareIntervalRe.ReplaceAllString(sql, "INTERVAL '$1 $2'")
}
