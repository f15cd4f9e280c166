package models

// Table mirrors a table that exists (or existed) in the broker.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column is a local reference to a broker column. Its table never changes
// after creation.
type Column struct {
	ID    int64  `json:"id"`
	Table string `json:"table"`
	Name  string `json:"name"`
}

// ColumnNames returns the names of the given columns, preserving order.
func ColumnNames(columns []Column) []string {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}
	return names
}

// ColumnIDs returns the ids of the given columns, preserving order.
func ColumnIDs(columns []Column) []int64 {
	ids := make([]int64, 0, len(columns))
	for _, col := range columns {
		ids = append(ids, col.ID)
	}
	return ids
}
