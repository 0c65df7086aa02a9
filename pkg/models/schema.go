package models

// ColumnSchema describes one column of a TableSchema (§3).
type ColumnSchema struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// ForeignKeySchema describes one foreign key relationship (§3).
type ForeignKeySchema struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// TableSchema describes one table's shape (§3).
type TableSchema struct {
	Name        string
	Columns     []ColumnSchema
	ForeignKeys []ForeignKeySchema
}

// DatabaseSchema is the list of TableSchema discovered at startup (§3, §4.8).
type DatabaseSchema struct {
	Tables []TableSchema
}
