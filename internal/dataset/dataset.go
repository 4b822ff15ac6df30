package dataset

import (
	"fmt"
	"strings"
)

// Row holds raw cell text positionally aligned with the owning table's Columns.
type Row []string

type Table struct {
	Name    string
	Columns []string
	Rows    []Row
	// Values holds the typed cells of Rows when the source recorded cell types, as a
	// workbook does. It is either empty or exactly as long as Rows.
	Values [][]Value
}

type Dataset struct {
	Tables []Table
}

// Records returns each row as a column-name mapping. Cells missing from a short row
// are omitted, matching how the sheet itself leaves them blank.
func (t Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(t.Columns))
		for i, column := range t.Columns {
			if i >= len(row) {
				break
			}
			record[column] = row[i]
		}
		records = append(records, record)
	}
	return records
}

// TypedRows returns the cells that get stored. Workbook tables carry the type each cell
// was saved with; tables built from text alone are tagged with ParseValue.
func (t Table) TypedRows() [][]Value {
	if len(t.Values) == len(t.Rows) && len(t.Values) > 0 {
		return t.Values
	}
	out := make([][]Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, ParseRow(row))
	}
	return out
}

// Validate checks the structural requirements a store needs before it can create
// tables: named tables, unique names, and a non-empty header of unique column names.
// Row widths are not checked here; positional binding tolerates ragged rows.
func (d Dataset) Validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("dataset has no tables")
	}
	seenTables := make(map[string]struct{}, len(d.Tables))
	for _, table := range d.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return fmt.Errorf("table name is required")
		}
		key := strings.ToLower(name)
		if _, ok := seenTables[key]; ok {
			return fmt.Errorf("duplicate table name %q", table.Name)
		}
		seenTables[key] = struct{}{}

		if len(table.Columns) == 0 {
			return fmt.Errorf("table %q has no header columns", table.Name)
		}
		seenColumns := make(map[string]struct{}, len(table.Columns))
		for i, column := range table.Columns {
			if strings.TrimSpace(column) == "" {
				return fmt.Errorf("table %q column %d has an empty header", table.Name, i+1)
			}
			columnKey := strings.ToLower(column)
			if _, ok := seenColumns[columnKey]; ok {
				return fmt.Errorf("table %q has duplicate column %q", table.Name, column)
			}
			seenColumns[columnKey] = struct{}{}
		}
	}
	return nil
}
