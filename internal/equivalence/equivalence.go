// Package equivalence decides whether two query results describe the same answer.
package equivalence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/querygrade/querygrade/internal/query"
)

// Tier identifies which comparison pass accepted a pair of results.
type Tier int

const (
	TierNone Tier = iota
	// TierIdentity matched column names and values.
	TierIdentity
	// TierValues matched values only, in key-sorted order, ignoring column names.
	TierValues
)

func (t Tier) String() string {
	switch t {
	case TierIdentity:
		return "identity"
	case TierValues:
		return "values"
	default:
		return "none"
	}
}

// Equivalent reports whether student and model hold the same rows, ignoring row order.
func Equivalent(student, model []query.Row) bool {
	return Compare(student, model) != TierNone
}

// Compare runs both passes. Rows are canonicalized with their keys sorted and the
// canonical forms sorted per side; the value pass reuses that order rather than
// sorting again, so it only forgives differently named columns.
func Compare(student, model []query.Row) Tier {
	if len(student) != len(model) {
		return TierNone
	}
	left := canonicalize(student)
	right := canonicalize(model)

	if slices.EqualFunc(left, right, func(a, b canonicalRow) bool { return a.full == b.full }) {
		return TierIdentity
	}
	if slices.EqualFunc(left, right, func(a, b canonicalRow) bool { return a.values == b.values }) {
		return TierValues
	}
	return TierNone
}

type canonicalRow struct {
	full   string
	values string
}

func canonicalize(rows []query.Row) []canonicalRow {
	out := make([]canonicalRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, canonicalizeRow(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].full < out[j].full })
	return out
}

func canonicalizeRow(row query.Row) canonicalRow {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var full, values strings.Builder
	full.WriteByte('{')
	values.WriteByte('[')
	for i, key := range keys {
		if i > 0 {
			full.WriteByte(',')
			values.WriteByte(',')
		}
		encoded := encodeValue(row[key])
		full.WriteString(encodeJSON(key))
		full.WriteByte(':')
		full.WriteString(encoded)
		values.WriteString(encoded)
	}
	full.WriteByte('}')
	values.WriteByte(']')
	return canonicalRow{full: full.String(), values: values.String()}
}

const jsonTimeLayout = "2006-01-02T15:04:05.000Z"

func encodeValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case []byte:
		return encodeJSON(string(typed))
	case time.Time:
		return encodeJSON(typed.UTC().Format(jsonTimeLayout))
	case float64:
		return encodeFloat(typed)
	case float32:
		return encodeFloat(float64(typed))
	default:
		return encodeJSON(typed)
	}
}

// encodeFloat prints integral floats like integers, matching the JSON number grammar.
// Non-finite values have no JSON form and become null.
func encodeFloat(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "null"
	}
	if value == 0 {
		return "0"
	}
	return encodeJSON(value)
}

func encodeJSON(value any) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		buf.Reset()
		_ = encoder.Encode(fmt.Sprint(value))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
