package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// noMatch is a character class that matches nothing. Empty whitelists compile
// to this sentinel so the corresponding rule stays syntactically valid but
// unreachable, instead of producing a malformed empty alternation.
const noMatch = `[^\s\S]`

// grammarTemplate is the fixed Lark rule skeleton. Only the terminal
// alternations vary per schema; the statement shape itself never changes:
// SELECT-only, AND-conjoined predicates, no OR, no parentheses.
const grammarTemplate = `// ClickHouse SQL grammar, generated from the %[1]s schema.
// Lark syntax, consumed as a constrained-generation grammar.

// Whitespace
WS: /\s+/

// Punctuation
COMMA: ","
LPAREN: "("
RPAREN: ")"

// Operators
GTE: ">="
GT: ">"
LTE: "<="
LT: "<"
EQ: "="

// Functions
DATEDIFF: /dateDiff/i

// Keywords
SELECT: /SELECT/i
FROM: /FROM/i
WHERE: /WHERE/i
AND: /AND/i
GROUP: /GROUP/i
BY: /BY/i
ORDER: /ORDER/i
ASC: /ASC/i
DESC: /DESC/i
LIMIT: /LIMIT/i
INTERVAL: /INTERVAL/i
NOW: /now/i

// Time units
TIME_UNIT: /SECOND|MINUTE|HOUR|DAY|WEEK|MONTH/i

// Column names (whitelisted)
COLUMN: /%[2]s/
AGG_COLUMN: /%[3]s/
GROUP_COLUMN: /%[4]s/
FILTER_COLUMN: /%[5]s/
FILTER_STRING_COLUMN: /%[6]s/
FILTER_NUMERIC_COLUMN: /%[7]s/
DATETIME_COL: "%[8]s"
DATETIME_ANY: /%[9]s/

// Aggregate functions
AGG_FUNC: /%[10]s/

// Table name (fixed)
TABLE: "%[1]s"

// Literals
NUMBER: /[1-9][0-9]*/
STRING_VALUE: /%[11]s/
DATE: /[0-9]{4}-[0-9]{2}-[0-9]{2}/
DATETIME: /[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}/

// Main query structure
start: select_stmt

select_stmt: SELECT WS select_list WS FROM WS TABLE [where_clause] [group_clause] [order_clause] [limit_clause]

// SELECT list
select_list: select_item (COMMA WS? select_item)*
select_item: agg_expr | COLUMN | count_star
count_star: "count()" | "count(*)"
agg_expr: AGG_FUNC LPAREN AGG_COLUMN RPAREN

// WHERE clause
where_clause: WS WHERE WS condition (WS AND WS condition)*
condition: time_condition | eq_condition | duration_condition

// Time filter
time_condition: DATETIME_COL WS? comp_op WS? time_expr
comp_op: GTE | GT | LTE | LT
time_expr: now_interval | date_literal
now_interval: NOW LPAREN RPAREN WS? "-" WS? INTERVAL WS NUMBER WS TIME_UNIT
date_literal: "'" (DATETIME | DATE) "'"

// Equality filter
eq_condition: string_eq | numeric_eq
string_eq: FILTER_STRING_COLUMN WS? EQ WS? "'" STRING_VALUE "'"
numeric_eq: FILTER_NUMERIC_COLUMN WS? EQ WS? NUMBER

// Duration filter
duration_condition: DATEDIFF LPAREN WS? "'" TIME_UNIT "'" WS? COMMA WS? DATETIME_ANY WS? COMMA WS? DATETIME_ANY WS? RPAREN WS? comp_op WS? NUMBER

// GROUP BY
group_clause: WS GROUP WS BY WS group_list
group_list: GROUP_COLUMN (COMMA WS? GROUP_COLUMN)*

// ORDER BY
order_clause: WS ORDER WS BY WS order_list
order_list: order_item (COMMA WS? order_item)*
order_item: COLUMN (WS sort_dir)?
sort_dir: ASC | DESC

// LIMIT
limit_clause: WS LIMIT WS NUMBER`

// CompileGrammar compiles a schema definition into Lark grammar text that
// constrains an external text generator to schema-safe SELECT statements.
//
// The output is a pure function of the schema: identical input produces
// byte-identical text, which callers rely on for per-schema caching and
// golden-output tests. All terminal alternations follow the schema's column
// declaration order.
func CompileGrammar(s *SchemaDefinition) string {
	return fmt.Sprintf(grammarTemplate,
		s.Table,
		alternation(s.ColumnNames()),
		alternation(s.AggregatableColumns()),
		alternation(s.GroupableColumns()),
		alternation(s.FilterableColumns()),
		alternation(s.FilterableStringColumns()),
		alternation(s.FilterableNumericColumns()),
		s.DatetimeColumn,
		alternation(s.DatetimeColumns()),
		alternation(s.SupportedAggregates),
		alternation(s.FilterValues()),
	)
}

// alternation joins whitelist entries into a regex alternation, escaping any
// metacharacters. An empty whitelist yields the never-matching sentinel.
func alternation(items []string) string {
	if len(items) == 0 {
		return noMatch
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = regexp.QuoteMeta(item)
	}
	return strings.Join(quoted, "|")
}
