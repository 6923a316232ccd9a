package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charithmadhuranga/fledge/storage/sqlbuf"
)

// readingsTable is the one table name that gets the canonical projection
// and user_ts/ts to_char substitution described in spec §4.C.
const readingsTable = "readings"

// timestampFormat is the Postgres to_char format used whenever a
// readings-table timestamp column is projected as text.
const timestampFormat = "YYYY-MM-DD HH24:MI:SS.US"

// Compile turns a parsed Query into a full SELECT statement against table.
func Compile(table string, q *Query) (string, error) {
	buf := &sqlbuf.Buffer{}

	proj, err := projection(table, q)
	if err != nil {
		return "", err
	}

	buf.WriteString("SELECT ").WriteString(proj).WriteString(" FROM ").WriteString(table)

	var whereClauses []string
	if q.Where != nil {
		whereSQL, err := compileCondition(q.Where, table)
		if err != nil {
			return "", err
		}
		whereClauses = append(whereClauses, whereSQL)
	}
	for _, it := range q.Return {
		if it.JSON == nil {
			continue
		}
		if c := jsonExistenceConstraint(it.JSON); c != "" {
			whereClauses = append(whereClauses, c)
		}
	}
	if len(whereClauses) > 0 {
		buf.WriteString(" WHERE ").WriteString(strings.Join(whereClauses, " AND "))
	}

	if q.Group != nil {
		buf.WriteString(" GROUP BY ").WriteString(groupExpr(table, q.Group))
	} else if len(q.Aggregate) > 0 && hasNonAggregateReturn(q) {
		// no implicit grouping beyond what's requested; spec leaves bare
		// aggregate-only payloads ungrouped.
	}

	if q.Timebucket != nil {
		buf.WriteString(" GROUP BY ").WriteString(timebucketBucketExpr(q.Timebucket))
	}

	if len(q.Sort) > 0 {
		parts := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			dir := strings.ToUpper(s.Direction)
			if dir != "ASC" && dir != "DESC" {
				dir = "ASC"
			}
			parts = append(parts, fmt.Sprintf("%s %s", quoteIdent(s.Column), dir))
		}
		buf.WriteString(" ORDER BY ").WriteString(strings.Join(parts, ", "))
	} else if q.Timebucket != nil {
		// spec.md:112: "GROUP BY floor(...) followed by ORDER BY
		// floor(...) DESC" — the actual bucketing expression, descending,
		// not the output alias ascending.
		buf.WriteString(" ORDER BY ").WriteString(timebucketBucketExpr(q.Timebucket)).WriteString(" DESC")
	}

	if q.Limit != nil {
		buf.WriteString(" LIMIT ").WriteInt(int64(*q.Limit))
	}
	if q.Skip != nil {
		buf.WriteString(" OFFSET ").WriteInt(int64(*q.Skip))
	}

	return buf.Coalesce(), nil
}

func hasNonAggregateReturn(q *Query) bool {
	return q.Group != nil
}

// projection builds the SELECT list. Readings-table queries with neither
// `return` nor `aggregate` get the canonical projection from spec §4.C;
// everything else is built from the return/aggregate/group clauses.
func projection(table string, q *Query) (string, error) {
	if len(q.Aggregate) > 0 {
		return aggregateProjection(table, q)
	}
	if len(q.Return) > 0 {
		return returnProjection(table, q.Return)
	}
	if table == readingsTable {
		return fmt.Sprintf(
			`id, asset_code, read_key, reading, to_char(user_ts,'%s') as user_ts, to_char(ts,'%s') as ts`,
			timestampFormat, timestampFormat), nil
	}
	return "*", nil
}

func returnProjection(table string, items []ReturnItem) (string, error) {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		expr, alias, err := returnExpr(table, it)
		if err != nil {
			return "", err
		}
		if alias != "" {
			expr = fmt.Sprintf(`%s AS "%s"`, expr, alias)
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", "), nil
}

func returnExpr(table string, it ReturnItem) (expr, alias string, err error) {
	alias = it.Alias
	col := readingsColumnRef(table, it.Column)

	switch {
	case it.JSON != nil:
		expr = jsonPathExpr(it.JSON)
		if alias == "" {
			alias = it.JSON.Column
		}
		return expr, alias, nil
	case it.Format != "":
		expr = fmt.Sprintf("to_char(%s, '%s')", col, escapeLiteral(it.Format))
		if alias == "" {
			alias = it.Column
		}
		return expr, alias, nil
	case it.Timezone != "":
		expr = fmt.Sprintf("%s AT TIME ZONE '%s'", col, escapeLiteral(it.Timezone))
		if alias == "" {
			alias = it.Column
		}
		return expr, alias, nil
	default:
		if alias == "" {
			alias = it.Column
		}
		return col, alias, nil
	}
}

// jsonPathExpr renders {json:{column,properties}} as a JSONB path
// expression using the `->` operator, with the last hop as `->>` so the
// final value comes back as text, per spec §4.C.
func jsonPathExpr(j *JSONPath) string {
	expr := quoteIdent(j.Column)
	for i, prop := range j.Properties {
		op := "->"
		if i == len(j.Properties)-1 {
			op = "->>"
		}
		expr = fmt.Sprintf("%s%s'%s'", expr, op, escapeLiteral(prop))
	}
	return expr
}

// jsonExistenceConstraint builds the "column ? 'lastKey'" existence
// check that spec §4.C says gets auto-appended to the WHERE clause
// whenever a `{json:...}` return item is used, guarding against rows
// where the path doesn't exist.
func jsonExistenceConstraint(j *JSONPath) string {
	if len(j.Properties) == 0 {
		return ""
	}
	last := j.Properties[len(j.Properties)-1]
	path := quoteIdent(j.Column)
	for _, prop := range j.Properties[:len(j.Properties)-1] {
		path = fmt.Sprintf("%s->'%s'", path, escapeLiteral(prop))
	}
	return fmt.Sprintf("%s ? '%s'", path, escapeLiteral(last))
}

func aggregateProjection(table string, q *Query) (string, error) {
	parts := make([]string, 0, len(q.Aggregate)+1)
	if q.Group != nil {
		parts = append(parts, groupSelectExpr(table, q.Group))
	}
	if q.Timebucket != nil {
		parts = append(parts, fmt.Sprintf(`%s AS "%s"`, timebucketProjectionExpr(q.Timebucket), q.Timebucket.Alias))
	}
	for _, agg := range q.Aggregate {
		expr, alias, err := aggregateExpr(table, agg)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf(`%s AS "%s"`, expr, alias))
	}
	return strings.Join(parts, ", "), nil
}

func aggregateExpr(table string, a Aggregate) (expr, alias string, err error) {
	op := strings.ToUpper(a.Operation)
	switch op {
	case "COUNT", "SUM", "MIN", "MAX", "AVG":
	default:
		return "", "", fmt.Errorf("unsupported aggregate operation %q", a.Operation)
	}

	var col string
	switch {
	case a.JSON != nil:
		col = jsonPathExpr(a.JSON)
	case a.Column == "*":
		col = "*"
	default:
		col = readingsColumnRef(table, a.Column)
	}

	expr = fmt.Sprintf("%s(%s)", op, col)
	alias = a.Alias
	if alias == "" {
		name := a.Column
		if a.JSON != nil {
			name = a.JSON.Column
		}
		alias = fmt.Sprintf("%s_%s", strings.ToLower(op), name)
	}
	return expr, alias, nil
}

// readingsColumnRef substitutes the readings-table's to_char rendering
// for user_ts/ts wherever they're referenced from return/aggregate/sort
// clauses, per spec §4.C.
func readingsColumnRef(table, column string) string {
	if table == readingsTable && (column == "user_ts" || column == "ts") {
		return fmt.Sprintf("to_char(%s,'%s')", column, timestampFormat)
	}
	return quoteIdent(column)
}

func groupExpr(table string, g *GroupBy) string {
	if g.Format != "" {
		return fmt.Sprintf("to_char(%s, '%s')", readingsColumnRef(table, g.Column), escapeLiteral(g.Format))
	}
	// Unlike return/aggregate projections, spec §4.C documents automatic
	// to_char substitution only for the canonical projection and
	// explicit return items, not for a bare group column — so a
	// no-format group falls back to the raw column, not
	// readingsColumnRef.
	return quoteIdent(g.Column)
}

func groupSelectExpr(table string, g *GroupBy) string {
	expr := groupExpr(table, g)
	alias := g.Alias
	if alias == "" {
		alias = g.Column
	}
	return fmt.Sprintf(`%s AS "%s"`, expr, alias)
}

// timebucketBucketExpr builds the floor/date_trunc bucketing expression
// shared by GROUP BY and ORDER BY (spec.md:112: "GROUP BY floor(...)
// followed by ORDER BY floor(...) DESC" — the same expression in both
// places). It always operates on the raw timestamp column: extract/
// date_trunc require an actual timestamp value, and the readings
// table's to_char text rendering (readingsColumnRef) would make this
// invalid SQL.
func timebucketBucketExpr(tb *TimeBucket) string {
	col := quoteIdent(tb.Timestamp)
	if tb.Size <= 1 {
		return fmt.Sprintf("date_trunc('second', %s)", col)
	}
	return fmt.Sprintf("to_timestamp(floor(extract(epoch from %s) / %d) * %d)", col, tb.Size, tb.Size)
}

// timebucketProjectionExpr builds the SELECT-list rendering of a
// timebucket, optionally to_char-formatted per spec.md:112's "optionally
// to_char-formatted" timebucket projection.
func timebucketProjectionExpr(tb *TimeBucket) string {
	expr := timebucketBucketExpr(tb)
	if tb.Format != "" {
		return fmt.Sprintf("to_char(%s, '%s')", expr, escapeLiteral(tb.Format))
	}
	return expr
}

// compileCondition renders a WHERE condition tree, recursing through
// and/or arms. Columns known to be numeric (a leading digit) are
// emitted unquoted per spec §4.C's numeric-literal-column rule.
// WHERE-clause columns are never routed through readingsColumnRef: the
// readings table's automatic to_char substitution is a return/aggregate/
// group projection concern (spec §4.C), not a condition concern —
// comparing user_ts/ts to a value has to compare against the actual
// timestamp column, not its text rendering, or `older`/`newer`'s
// `now() - interval '...'` comparison breaks on a type mismatch.
func compileCondition(c *Condition, table string) (string, error) {
	if c == nil {
		return "", nil
	}

	col := quoteIdent(c.Column)
	var clause string
	var err error

	switch strings.ToLower(c.Condition) {
	case "=", "!=", "<", ">", "<=", ">=":
		clause = fmt.Sprintf("%s %s %s", col, c.Condition, literal(c.Value))
	case "older":
		clause, err = ageClause(col, c.Value, "<")
	case "newer":
		clause, err = ageClause(col, c.Value, ">")
	case "in", "not in":
		clause, err = inClause(col, c.Condition, c.Value)
	default:
		return "", fmt.Errorf("unsupported condition %q", c.Condition)
	}
	if err != nil {
		return "", err
	}

	if c.And != nil {
		rest, err := compileCondition(c.And, table)
		if err != nil {
			return "", err
		}
		clause = fmt.Sprintf("(%s AND %s)", clause, rest)
	}
	if c.Or != nil {
		rest, err := compileCondition(c.Or, table)
		if err != nil {
			return "", err
		}
		clause = fmt.Sprintf("(%s OR %s)", clause, rest)
	}
	return clause, nil
}

func ageClause(col string, value any, op string) (string, error) {
	seconds, ok := toNumber(value)
	if !ok {
		return "", fmt.Errorf("older/newer value must be numeric seconds")
	}
	return fmt.Sprintf("%s %s now() - interval '%s seconds'", col, op, formatNumber(seconds)), nil
}

func inClause(col, condition string, value any) (string, error) {
	arr, ok := value.([]any)
	if !ok || len(arr) == 0 {
		return "", fmt.Errorf(`The "value" of a "in" condition must be an array and must not be empty.`)
	}
	op := "IN"
	if strings.EqualFold(condition, "not in") {
		op = "NOT IN"
	}
	parts := make([]string, 0, len(arr))
	for _, v := range arr {
		parts = append(parts, literal(v))
	}
	return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(parts, ", ")), nil
}

// literal renders a Go value (decoded from the condition JSON) as a SQL
// literal. Strings are single-quoted with embedded quotes doubled;
// numbers and bools pass through as-is.
func literal(v any) string {
	switch t := v.(type) {
	case string:
		if IsFunctionCall(t) {
			return t
		}
		return quoteLiteral(t)
	case float64:
		return formatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "NULL"
	default:
		return quoteLiteral(fmt.Sprintf("%v", t))
	}
}

func toNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteIdent double-quotes a column identifier unless it's a bare
// digit-leading numeric literal column, per spec §4.C.
func quoteIdent(col string) string {
	if col == "" {
		return col
	}
	if col[0] >= '0' && col[0] <= '9' {
		return col
	}
	if col == "*" {
		return col
	}
	return fmt.Sprintf(`"%s"`, col)
}
