package dataset

import "testing"

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		want any
	}{
		{in: "", kind: KindNull, want: nil},
		{in: "  ", kind: KindNull, want: nil},
		{in: "TRUE", kind: KindBoolean, want: true},
		{in: "false", kind: KindBoolean, want: false},
		{in: "12/5/2023", kind: KindDate, want: "12/5/2023"},
		{in: "42", kind: KindInteger, want: int64(42)},
		{in: "42kg", kind: KindText, want: "42kg"},
		{in: "3.5", kind: KindFloat, want: 3.5},
		{in: "Dune", kind: KindText, want: "Dune"},
	}

	for _, tt := range tests {
		got := ParseValue(tt.in)
		if got.Kind != tt.kind {
			t.Fatalf("ParseValue(%q).Kind = %s, want %s", tt.in, got.Kind, tt.kind)
		}
		if got.Any() != tt.want {
			t.Fatalf("ParseValue(%q).Any() = %#v, want %#v", tt.in, got.Any(), tt.want)
		}
	}
}

func TestColumnKinds(t *testing.T) {
	table := Table{
		Name:    "t",
		Columns: []string{"id", "price", "note", "blank"},
		Rows: []Row{
			{"1", "2", "x", ""},
			{"2", "2.5", "7", ""},
			{"3"},
		},
	}
	got := ColumnKinds(table)
	want := []Kind{KindInteger, KindFloat, KindText, KindNull}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ColumnKinds()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
