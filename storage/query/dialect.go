// Package query implements the JSON condition dialect described in
// spec §4.C: a small, purpose-built language for select/aggregate/
// where/group/timebucket/sort/limit, compiled directly to SQL text. It
// is deliberately not a general SQL translator (spec Non-goals) — only
// the documented shapes below are accepted.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a recursive WHERE node: {column, condition, value, and?, or?}.
type Condition struct {
	Column    string
	Condition string
	Value     any
	And       *Condition
	Or        *Condition
}

// UnmarshalJSON parses a Condition, including its recursive and/or arms.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Column    string          `json:"column"`
		Condition string          `json:"condition"`
		Value     json.RawMessage `json:"value"`
		And       *Condition      `json:"and"`
		Or        *Condition      `json:"or"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Column = raw.Column
	c.Condition = raw.Condition
	c.And = raw.And
	c.Or = raw.Or
	if len(raw.Value) > 0 {
		var v any
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return err
		}
		c.Value = v
	}
	return nil
}

// JSONPath addresses a nested key path inside a JSONB column: {column, properties}.
type JSONPath struct {
	Column     string
	Properties []string
}

// UnmarshalJSON accepts Properties as either a bare string or an array of strings.
func (j *JSONPath) UnmarshalJSON(data []byte) error {
	var raw struct {
		Column     string          `json:"column"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j.Column = raw.Column
	if len(raw.Properties) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Properties, &single); err == nil {
		j.Properties = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw.Properties, &many); err != nil {
		return fmt.Errorf("properties must be a string or array of strings: %w", err)
	}
	j.Properties = many
	return nil
}

// ReturnItem is one entry of the `return` projection list.
type ReturnItem struct {
	Column   string
	Format   string
	Timezone string
	JSON     *JSONPath
	Alias    string
}

// UnmarshalJSON accepts a ReturnItem as a bare column-name string or an object.
func (r *ReturnItem) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		r.Column = bare
		return nil
	}
	var raw struct {
		Column   string    `json:"column"`
		Format   string    `json:"format"`
		Timezone string    `json:"timezone"`
		JSON     *JSONPath `json:"json"`
		Alias    string    `json:"alias"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Column, r.Format, r.Timezone, r.JSON, r.Alias = raw.Column, raw.Format, raw.Timezone, raw.JSON, raw.Alias
	return nil
}

// Aggregate is one entry of the `aggregate` clause: {operation, column|json, alias}.
type Aggregate struct {
	Operation string
	Column    string
	JSON      *JSONPath
	Alias     string
}

func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operation string    `json:"operation"`
		Column    string    `json:"column"`
		JSON      *JSONPath `json:"json"`
		Alias     string    `json:"alias"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Operation, a.Column, a.JSON, a.Alias = raw.Operation, raw.Column, raw.JSON, raw.Alias
	return nil
}

// GroupBy is the `group` clause: a bare column string or {column, format?, alias?}.
type GroupBy struct {
	Column string
	Format string
	Alias  string
}

func (g *GroupBy) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		g.Column = bare
		return nil
	}
	var raw struct {
		Column string `json:"column"`
		Format string `json:"format"`
		Alias  string `json:"alias"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Column, g.Format, g.Alias = raw.Column, raw.Format, raw.Alias
	return nil
}

// TimeBucket is the `timebucket` clause: {timestamp, size?, format?, alias?}.
type TimeBucket struct {
	Timestamp string
	Size      int
	Format    string
	Alias     string
}

func (t *TimeBucket) UnmarshalJSON(data []byte) error {
	raw := struct {
		Timestamp string `json:"timestamp"`
		Size      *int   `json:"size"`
		Format    string `json:"format"`
		Alias     string `json:"alias"`
	}{Size: nil}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Timestamp, t.Format, t.Alias = raw.Timestamp, raw.Format, raw.Alias
	if raw.Size != nil {
		t.Size = *raw.Size
	} else {
		t.Size = 1
	}
	if t.Alias == "" {
		t.Alias = "timestamp"
	}
	return nil
}

// Sort is one entry of the `sort` clause: {column, direction?}.
type Sort struct {
	Column    string
	Direction string
}

func (s *Sort) UnmarshalJSON(data []byte) error {
	var raw struct {
		Column    string `json:"column"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Column = raw.Column
	s.Direction = strings.ToUpper(raw.Direction)
	if s.Direction == "" {
		s.Direction = "ASC"
	}
	return nil
}

// oneOrMany unmarshals a field that may be either a bare object or an
// array of objects into a slice, used for `aggregate` and `sort`.
func oneOrMany[T any](data json.RawMessage, dst *[]T) error {
	if len(data) == 0 {
		return nil
	}
	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		*dst = many
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*dst = []T{single}
	return nil
}

// Query is a fully parsed condition document, ready for compilation.
type Query struct {
	Where      *Condition
	Aggregate  []Aggregate
	Return     []ReturnItem
	Modifier   string
	Group      *GroupBy
	Sort       []Sort
	Timebucket *TimeBucket
	Limit      *int
	Skip       *int
}

// Parse decodes a condition-JSON document into a Query, enforcing the
// presence rules from spec §4.C: aggregate XOR return XOR neither at the
// top level, and sort/timebucket mutual exclusion.
func Parse(data []byte) (*Query, error) {
	var raw struct {
		Where      *Condition        `json:"where"`
		Aggregate  json.RawMessage   `json:"aggregate"`
		Return     []ReturnItem      `json:"return"`
		Modifier   string            `json:"modifier"`
		Group      *GroupBy          `json:"group"`
		Sort       json.RawMessage   `json:"sort"`
		Timebucket *TimeBucket       `json:"timebucket"`
		Limit      *int              `json:"limit"`
		Skip       *int              `json:"skip"`
	}
	if err := validateStructure(data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse condition JSON: %w", err)
	}

	q := &Query{
		Where:      raw.Where,
		Modifier:   raw.Modifier,
		Group:      raw.Group,
		Timebucket: raw.Timebucket,
		Limit:      raw.Limit,
		Skip:       raw.Skip,
		Return:     raw.Return,
	}

	if err := oneOrMany(raw.Aggregate, &q.Aggregate); err != nil {
		return nil, fmt.Errorf("parse aggregate: %w", err)
	}
	if err := oneOrMany(raw.Sort, &q.Sort); err != nil {
		return nil, fmt.Errorf("parse sort: %w", err)
	}

	if len(q.Aggregate) > 0 && len(q.Return) > 0 {
		return nil, fmt.Errorf("aggregate and return are mutually exclusive")
	}
	if q.Sort != nil && q.Timebucket != nil {
		return nil, fmt.Errorf("Sort and timebucket modifiers can not be used in the same payload")
	}

	return q, nil
}
