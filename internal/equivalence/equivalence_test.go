package equivalence

import (
	"math"
	"testing"
	"time"

	"github.com/querygrade/querygrade/internal/query"
)

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name    string
		student []query.Row
		model   []query.Row
		want    Tier
	}{
		{
			name:    "both empty",
			student: []query.Row{},
			model:   nil,
			want:    TierIdentity,
		},
		{
			name:    "reflexive",
			student: []query.Row{{"a": int64(1), "b": "x"}, {"a": int64(2), "b": nil}},
			model:   []query.Row{{"a": int64(1), "b": "x"}, {"a": int64(2), "b": nil}},
			want:    TierIdentity,
		},
		{
			name:    "key order independent",
			student: []query.Row{{"a": int64(1), "b": int64(2)}},
			model:   []query.Row{{"b": int64(2), "a": int64(1)}},
			want:    TierIdentity,
		},
		{
			name:    "row order independent",
			student: []query.Row{{"a": int64(2)}, {"a": int64(1)}},
			model:   []query.Row{{"a": int64(1)}, {"a": int64(2)}},
			want:    TierIdentity,
		},
		{
			name:    "alias tolerant",
			student: []query.Row{{"book_id": int64(5)}},
			model:   []query.Row{{"id": int64(5)}},
			want:    TierValues,
		},
		{
			name:    "row count mismatch",
			student: []query.Row{{"a": int64(1)}},
			model:   []query.Row{{"a": int64(1)}, {"a": int64(2)}},
			want:    TierNone,
		},
		{
			name:    "different values",
			student: []query.Row{{"a": int64(1)}},
			model:   []query.Row{{"a": int64(2)}},
			want:    TierNone,
		},
		{
			name:    "integral float matches integer",
			student: []query.Row{{"total": float64(90)}},
			model:   []query.Row{{"total": int64(90)}},
			want:    TierIdentity,
		},
		{
			name:    "number and text differ",
			student: []query.Row{{"a": "1"}},
			model:   []query.Row{{"a": int64(1)}},
			want:    TierNone,
		},
		{
			name:    "bytes compare as text",
			student: []query.Row{{"name": []byte("Ann")}},
			model:   []query.Row{{"name": "Ann"}},
			want:    TierIdentity,
		},
		{
			name:    "alias with reordered columns is not rescued",
			student: []query.Row{{"x": int64(1), "y": int64(2)}},
			model:   []query.Row{{"b": int64(1), "a": int64(2)}},
			want:    TierNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.student, tc.model); got != tc.want {
				t.Fatalf("Compare() = %s, want %s", got, tc.want)
			}
			if got := Equivalent(tc.student, tc.model); got != (tc.want != TierNone) {
				t.Fatalf("Equivalent() = %v", got)
			}
		})
	}
}

func TestValuePassKeepsCanonicalOrder(t *testing.T) {
	// Sorting by full canonical text orders these rows differently on each side, so
	// the value lists are compared out of step and do not match.
	student := []query.Row{{"a": int64(2)}, {"b": int64(1)}}
	model := []query.Row{{"z": int64(2)}, {"c": int64(1)}}
	if Equivalent(student, model) {
		t.Fatalf("expected value pass to respect canonical row order")
	}
}

func TestCanonicalizeRowSortsKeys(t *testing.T) {
	row := query.Row{
		"b":    "<tag>&",
		"a":    nil,
		"when": time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		"nan":  math.NaN(),
		"neg":  math.Copysign(0, -1),
		"ok":   true,
	}
	want := `{"a":null,"b":"<tag>&","nan":null,"neg":0,"ok":true,"when":"2024-03-01T10:00:00.000Z"}`
	if got := canonicalizeRow(row).full; got != want {
		t.Fatalf("canonicalizeRow().full = %s, want %s", got, want)
	}
}
