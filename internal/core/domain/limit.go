package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var limitRe = regexp.MustCompile(`(?i)\blimit\s+([0-9]+)\b`)

// EnforceLimit guarantees the statement carries a bounded LIMIT. A missing
// LIMIT gets the default appended; a LIMIT above maxLimit is capped; a LIMIT
// within bounds is left untouched. Only the first LIMIT clause is considered.
//
// This is a deliberate text-level transform, not an AST rewrite. It always
// succeeds under current policy; the boolean and violations exist for
// forward compatibility.
func EnforceLimit(sql string, defaultLimit, maxLimit int) (bool, string, []string) {
	cleaned := strings.TrimSpace(stripComments(sql))
	cleaned = strings.TrimSpace(strings.TrimRight(cleaned, ";"))

	m := limitRe.FindStringSubmatchIndex(cleaned)
	if m == nil {
		return true, fmt.Sprintf("%s LIMIT %d", cleaned, defaultLimit), nil
	}

	value, err := strconv.Atoi(cleaned[m[2]:m[3]])
	if err != nil || value > maxLimit {
		// err only fires on numbers too large for int, which are over any max.
		return true, cleaned[:m[2]] + strconv.Itoa(maxLimit) + cleaned[m[3]:], nil
	}

	return true, cleaned, nil
}
