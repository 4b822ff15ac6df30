package dataset

import (
	"strings"
	"testing"
)

func TestValidateRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset
		want string
	}{
		{name: "no tables", ds: Dataset{}, want: "no tables"},
		{name: "empty name", ds: Dataset{Tables: []Table{{Columns: []string{"a"}}}}, want: "table name is required"},
		{name: "duplicate table", ds: Dataset{Tables: []Table{{Name: "A", Columns: []string{"a"}}, {Name: "a", Columns: []string{"a"}}}}, want: "duplicate table"},
		{name: "no header", ds: Dataset{Tables: []Table{{Name: "t"}}}, want: "no header columns"},
		{name: "blank header", ds: Dataset{Tables: []Table{{Name: "t", Columns: []string{"a", " "}}}}, want: "empty header"},
		{name: "duplicate column", ds: Dataset{Tables: []Table{{Name: "t", Columns: []string{"id", "ID"}}}}, want: "duplicate column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRecordsOmitsMissingCells(t *testing.T) {
	table := Table{Name: "t", Columns: []string{"a", "b"}, Rows: []Row{{"1", "2"}, {"3"}}}
	records := table.Records()
	if len(records) != 2 {
		t.Fatalf("len(records) = %d", len(records))
	}
	if records[0]["b"] != "2" {
		t.Fatalf("records[0] = %#v", records[0])
	}
	if _, ok := records[1]["b"]; ok {
		t.Fatalf("records[1] = %#v, want b omitted", records[1])
	}
}
