package dataset

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindDate
	KindInteger
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is a cell after ingestion. Dates keep their sheet text since the workbook
// format does not pin a single date layout.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Text  string
}

var fullDatePattern = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`)

// ParseValue tags raw cell text. Unlike the schema classifier it only accepts whole-cell
// matches, so "42kg" stays text and is stored exactly as written.
func ParseValue(text string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Value{Kind: KindNull}
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return Value{Kind: KindBoolean, Bool: true}
	case "false":
		return Value{Kind: KindBoolean, Bool: false}
	}
	if fullDatePattern.MatchString(trimmed) {
		return Value{Kind: KindDate, Text: trimmed}
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Value{Kind: KindInteger, Int: n}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Value{Kind: KindFloat, Float: f}
	}
	return Value{Kind: KindText, Text: text}
}

func ParseRow(row Row) []Value {
	values := make([]Value, 0, len(row))
	for _, cell := range row {
		values = append(values, ParseValue(cell))
	}
	return values
}

// Any returns the driver argument for the value, preserving its tag.
func (v Value) Any() any {
	switch v.Kind {
	case KindBoolean:
		return v.Bool
	case KindInteger:
		return v.Int
	case KindFloat:
		return v.Float
	case KindDate, KindText:
		return v.Text
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindDate, KindText:
		return v.Text
	default:
		return ""
	}
}

// ColumnKinds reports, for each column, the single kind shared by every non-null value
// in that column. Columns mixing integers and floats report KindFloat; any other mix
// reports KindText, and all-null columns report KindNull.
func ColumnKinds(table Table) []Kind {
	kinds := make([]Kind, len(table.Columns))
	for _, row := range table.TypedRows() {
		for i := range table.Columns {
			if i >= len(row) {
				break
			}
			kinds[i] = mergeKind(kinds[i], row[i].Kind)
		}
	}
	return kinds
}

func mergeKind(current, next Kind) Kind {
	switch {
	case next == KindNull:
		return current
	case current == KindNull:
		return next
	case current == next:
		return current
	case (current == KindInteger && next == KindFloat) || (current == KindFloat && next == KindInteger):
		return KindFloat
	default:
		return KindText
	}
}
