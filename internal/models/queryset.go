package models

import "time"

// Queryset groups columns of a single broker table under a unique name.
// Columns are a set ordered by name.
type Queryset struct {
	Name      string    `json:"name"`
	Table     string    `json:"table"`
	Columns   []Column  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// QuerysetSummary is the listing view of a queryset.
type QuerysetSummary struct {
	Name        string `json:"name"`
	Table       string `json:"table"`
	ColumnCount int    `json:"column_count"`
}

type RepairAction string

const (
	RepairNoChanges       RepairAction = "no_changes_needed"
	RepairColumnsPruned   RepairAction = "columns_pruned"
	RepairQuerysetRemoved RepairAction = "queryset_removed"
)

// RepairOutcome reports what a repair pass did to a queryset.
type RepairOutcome struct {
	Queryset       string       `json:"queryset"`
	Action         RepairAction `json:"action"`
	RemovedColumns []string     `json:"removed_columns"`
}
