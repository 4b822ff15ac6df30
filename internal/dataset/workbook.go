package dataset

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbook turns every non-empty sheet into a table: the first row is the header,
// every later row with at least one non-blank cell is data. Rows keep the formatted
// (displayed) text; Values keep each cell's stored value tagged by its cell type.
func ReadWorkbook(r io.Reader) (Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Dataset{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ds Dataset
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Dataset{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		rawRows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return Dataset{}, fmt.Errorf("read raw values of sheet %q: %w", sheet, err)
		}

		header := make([]string, 0, len(rows[0]))
		for _, cell := range rows[0] {
			header = append(header, strings.TrimSpace(cell))
		}
		table := Table{Name: strings.TrimSpace(sheet), Columns: header}
		for index := 1; index < len(rows); index++ {
			if isBlankRow(rows[index]) {
				continue
			}
			var raw []string
			if index < len(rawRows) {
				raw = rawRows[index]
			}
			values, err := readTypedRow(f, sheet, index, len(rows[index]), raw)
			if err != nil {
				return Dataset{}, err
			}
			table.Rows = append(table.Rows, Row(rows[index]))
			table.Values = append(table.Values, values)
		}
		ds.Tables = append(ds.Tables, table)
	}

	if err := ds.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("invalid workbook: %w", err)
	}
	return ds, nil
}

// readTypedRow tags the cells of the zero-based sheet row index.
func readTypedRow(f *excelize.File, sheet string, index, width int, raw []string) ([]Value, error) {
	values := make([]Value, 0, width)
	for col := 0; col < width; col++ {
		var text string
		if col < len(raw) {
			text = raw[col]
		}
		if text == "" {
			values = append(values, Value{Kind: KindNull})
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, index+1)
		if err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheet, index+1, err)
		}
		cellType, err := f.GetCellType(sheet, cell)
		if err != nil {
			return nil, fmt.Errorf("sheet %q cell %s: %w", sheet, cell, err)
		}
		values = append(values, cellValue(cellType, text))
	}
	return values, nil
}

// cellValue tags an unformatted cell value by the type the sheet saved it with. Text
// cells stay text even when they look numeric; numeric cells stay numbers whatever
// their display format. Date-formatted numbers keep their serial number.
func cellValue(cellType excelize.CellType, raw string) Value {
	switch cellType {
	case excelize.CellTypeBool:
		return Value{Kind: KindBoolean, Bool: raw == "1" || strings.EqualFold(raw, "true")}
	case excelize.CellTypeDate:
		return Value{Kind: KindDate, Text: raw}
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Value{Kind: KindInteger, Int: n}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if v == float64(int64(v)) && v >= -9.007199254740992e15 && v <= 9.007199254740992e15 {
				return Value{Kind: KindInteger, Int: int64(v)}
			}
			return Value{Kind: KindFloat, Float: v}
		}
		return Value{Kind: KindText, Text: raw}
	default:
		return Value{Kind: KindText, Text: raw}
	}
}

func isBlankRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
