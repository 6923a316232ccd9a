package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charithmadhuranga/fledge/storage/sqlbuf"
)

// CompileInsert builds an INSERT statement from a flat column->value
// payload object, per spec §4.C's insert-payload literalization rules:
// strings that look like function calls pass through unquoted, other
// strings are single-quoted with embedded quotes doubled, and
// numeric/bool/object values are rendered as their natural literal.
func CompileInsert(table string, payload json.RawMessage) (string, error) {
	values := map[string]any{}
	if err := json.Unmarshal(payload, &values); err != nil {
		return "", fmt.Errorf("insert payload must be a JSON object: %w", err)
	}
	if len(values) == 0 {
		return "", fmt.Errorf("insert payload must not be empty")
	}

	cols := sortedKeys(values)
	colParts := make([]string, 0, len(cols))
	valParts := make([]string, 0, len(cols))
	for _, col := range cols {
		colParts = append(colParts, quoteIdent(col))
		valParts = append(valParts, insertLiteral(values[col]))
	}

	buf := &sqlbuf.Buffer{}
	buf.WriteString("INSERT INTO ").WriteString(table).
		WriteString(" (").WriteString(strings.Join(colParts, ", ")).WriteString(")").
		WriteString(" VALUES (").WriteString(strings.Join(valParts, ", ")).WriteString(")")
	return buf.Coalesce(), nil
}

func insertLiteral(v any) string {
	switch t := v.(type) {
	case string:
		if IsFunctionCall(t) {
			return t
		}
		return quoteLiteral(t)
	case map[string]any, []any:
		encoded, err := json.Marshal(t)
		if err != nil {
			return "NULL"
		}
		return quoteLiteral(string(encoded))
	default:
		return literal(v)
	}
}

// updatePayload is the shape accepted by CompileUpdate: values sets
// plain columns, expressions sets raw SQL right-hand sides (unquoted —
// the asymmetry with `values` is intentional, see spec §9's Open
// Question on the update operator, preserved rather than fixed),
// json_properties patches into a JSONB column, and condition/where
// (either key name is accepted) filters the rows touched.
type updatePayload struct {
	Values         map[string]any            `json:"values"`
	Expressions    map[string]json.RawMessage `json:"expressions"`
	JSONProperties []jsonPropertyUpdate       `json:"json_properties"`
	Condition      *Condition                 `json:"condition"`
	Where          *Condition                 `json:"where"`
}

type jsonPropertyUpdate struct {
	Column   string `json:"column"`
	Path     string `json:"path"`
	Value    any    `json:"value"`
}

// CompileUpdate builds one UPDATE statement per Update in payload. Per
// spec §4.C the canonical update payload is {updates: [Update, ...]};
// a single bare Update object is also accepted and treated as a
// one-element updates list.
func CompileUpdate(table string, payload json.RawMessage) ([]string, error) {
	var wrapper struct {
		Updates []json.RawMessage `json:"updates"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil && wrapper.Updates != nil {
		if len(wrapper.Updates) == 0 {
			return nil, fmt.Errorf("updates must not be empty")
		}
		stmts := make([]string, 0, len(wrapper.Updates))
		for i, raw := range wrapper.Updates {
			sql, err := compileOneUpdate(table, raw)
			if err != nil {
				return nil, fmt.Errorf("updates[%d]: %w", i, err)
			}
			stmts = append(stmts, sql)
		}
		return stmts, nil
	}

	sql, err := compileOneUpdate(table, payload)
	if err != nil {
		return nil, err
	}
	return []string{sql}, nil
}

// compileOneUpdate builds a single UPDATE statement from a flat Update
// object. At least one of values/expressions/json_properties must be
// present, per spec §4.C.
func compileOneUpdate(table string, payload json.RawMessage) (string, error) {
	var p updatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("parse update payload: %w", err)
	}
	if len(p.Values) == 0 && len(p.Expressions) == 0 && len(p.JSONProperties) == 0 {
		return "", fmt.Errorf("update payload must set at least one of values, expressions, or json_properties")
	}

	sets := make([]string, 0, len(p.Values)+len(p.Expressions)+len(p.JSONProperties))

	for _, col := range sortedKeys(p.Values) {
		// `values` entries are quoted like any other literal.
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(col), literal(p.Values[col])))
	}
	for _, col := range sortedRawKeys(p.Expressions) {
		var expr string
		if err := json.Unmarshal(p.Expressions[col], &expr); err != nil {
			return "", fmt.Errorf("expressions[%q] must be a string: %w", col, err)
		}
		// `expressions` are emitted verbatim, unquoted — this is the
		// documented asymmetry against `values`; preserved as-is.
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(col), expr))
	}
	for _, jp := range p.JSONProperties {
		sets = append(sets, fmt.Sprintf(
			"%s = jsonb_set(%s, '{%s}', %s)",
			quoteIdent(jp.Column), quoteIdent(jp.Column), jp.Path, jsonbLiteral(jp.Value)))
	}

	buf := &sqlbuf.Buffer{}
	buf.WriteString("UPDATE ").WriteString(table).WriteString(" SET ").WriteString(strings.Join(sets, ", "))

	where := p.Condition
	if where == nil {
		where = p.Where
	}
	if where != nil {
		clause, err := compileCondition(where, table)
		if err != nil {
			return "", err
		}
		buf.WriteString(" WHERE ").WriteString(clause)
	}

	return buf.Coalesce(), nil
}

func jsonbLiteral(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "'null'::jsonb"
	}
	return fmt.Sprintf("'%s'::jsonb", strings.ReplaceAll(string(encoded), "'", "''"))
}

// CompileDelete builds a DELETE statement. A where clause is required —
// spec §4.C treats an unconditional delete as a payload error rather
// than deleting every row.
func CompileDelete(table string, payload json.RawMessage) (string, error) {
	var p struct {
		Where     *Condition `json:"where"`
		Condition *Condition `json:"condition"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("parse delete payload: %w", err)
	}
	where := p.Where
	if where == nil {
		where = p.Condition
	}
	if where == nil {
		return "", fmt.Errorf("JSON does not contain where clause")
	}

	clause, err := compileCondition(where, table)
	if err != nil {
		return "", err
	}

	buf := &sqlbuf.Buffer{}
	buf.WriteString("DELETE FROM ").WriteString(table).WriteString(" WHERE ").WriteString(clause)
	return buf.Coalesce(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
