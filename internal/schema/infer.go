package schema

import "github.com/querygrade/querygrade/internal/dataset"

type TableSchema struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	DTypes    []DType  `json:"dtypes"`
}

// Infer samples exactly one data row per table. A table without data rows gets an
// empty dtype list; cells missing from a short first row classify as empty text.
func Infer(ds dataset.Dataset) []TableSchema {
	schemas := make([]TableSchema, 0, len(ds.Tables))
	for _, table := range ds.Tables {
		schemas = append(schemas, InferTable(table))
	}
	return schemas
}

func InferTable(table dataset.Table) TableSchema {
	columns := append([]string(nil), table.Columns...)
	dtypes := make([]DType, 0, len(columns))
	if len(table.Rows) > 0 {
		first := table.Rows[0]
		for i := range columns {
			cell := ""
			if i < len(first) {
				cell = first[i]
			}
			dtypes = append(dtypes, Classify(cell))
		}
	}
	return TableSchema{
		TableName: table.Name,
		Columns:   columns,
		DTypes:    dtypes,
	}
}
