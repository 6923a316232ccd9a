package query

import "regexp"

// functionCallPattern matches the same "looks like a SQL function call"
// shape used for insert-payload literalisation (spec §4.C). Kept in sync
// with storage.functionCallPattern; duplicated here because package
// storage imports storage/query, so this package cannot import storage.
var functionCallPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*\(.*\)$`)

// IsFunctionCall reports whether s should be passed through unquoted as a
// SQL expression rather than treated as a literal value.
func IsFunctionCall(s string) bool {
	return functionCallPattern.MatchString(s)
}
