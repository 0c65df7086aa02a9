// Package dbschema discovers a SQLite database's schema read-only at
// startup, renders it into a deterministic prompt block, and verifies the
// connection is genuinely read-only (§4.8). Grounded on modernc.org/sqlite,
// a pure-Go driver that needs no CGo toolchain — the same constraint-driven
// choice the rest of the pack makes for portable binaries.
package dbschema

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/taxonomy"
)

// MaxPromptChars is the hard cap on the rendered schema+prompt text (§4.8);
// exceeding it at startup is a fatal configuration error.
const MaxPromptChars = 12000

// Open opens path read-only via the native `?mode=ro` connection URI and
// returns the *sql.DB. The caller is responsible for closing it.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "open database read-only", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "ping database", err)
	}
	return db, nil
}

// VerifyReadOnly attempts to CREATE TABLE a throwaway probe table and
// requires the attempt to fail. A successful write means the connection is
// not truly read-only and startup must refuse to serve (§4.8).
func VerifyReadOnly(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE _probe_dbschema_writecheck (id INTEGER)")
	if err == nil {
		db.Exec("DROP TABLE _probe_dbschema_writecheck")
		return taxonomy.New(taxonomy.KindConfiguration, "database connection is writable; expected read-only", nil)
	}
	return nil
}

// Discover enumerates tables, columns, and foreign keys via SQLite's
// metadata pragmas.
func Discover(db *sql.DB) (*models.DatabaseSchema, error) {
	tableNames, err := listTables(db)
	if err != nil {
		return nil, err
	}

	schema := &models.DatabaseSchema{}
	for _, name := range tableNames {
		cols, err := tableColumns(db, name)
		if err != nil {
			return nil, err
		}
		fks, err := tableForeignKeys(db, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, models.TableSchema{
			Name:        name,
			Columns:     cols,
			ForeignKeys: fks,
		})
	}
	return schema, nil
}

func listTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "scan table name", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, rows.Err()
}

func tableColumns(db *sql.DB, table string) ([]models.ColumnSchema, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, fmt.Sprintf("inspect columns of %q", table), err)
	}
	defer rows.Close()

	var cols []models.ColumnSchema
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "scan column info", err)
		}
		cols = append(cols, models.ColumnSchema{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk != 0,
		})
	}
	return cols, rows.Err()
}

func tableForeignKeys(db *sql.DB, table string) ([]models.ForeignKeySchema, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, fmt.Sprintf("inspect foreign keys of %q", table), err)
	}
	defer rows.Close()

	var fks []models.ForeignKeySchema
	for rows.Next() {
		var id, seq int
		var refTable, from, to string
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "scan foreign key info", err)
		}
		fks = append(fks, models.ForeignKeySchema{
			Column:           from,
			ReferencedTable:  refTable,
			ReferencedColumn: to,
		})
	}
	return fks, rows.Err()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// RenderSchemaBlock renders schema into the deterministic text block fed to
// the system prompt (§3 "Rendered once at startup into a deterministic text
// block"). Discover sorts tables by name and keeps columns in declaration
// order, so two runs over the same file produce byte-identical output.
func RenderSchemaBlock(schema *models.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("Database schema:\n")
	for _, t := range schema.Tables {
		b.WriteString(fmt.Sprintf("\nTable %s:\n", t.Name))
		for _, c := range t.Columns {
			nullability := "NOT NULL"
			if c.Nullable {
				nullability = "NULL"
			}
			pk := ""
			if c.PrimaryKey {
				pk = " PRIMARY KEY"
			}
			b.WriteString(fmt.Sprintf("  - %s %s %s%s\n", c.Name, c.Type, nullability, pk))
		}
		for _, fk := range t.ForeignKeys {
			b.WriteString(fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)\n", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
	}
	return b.String()
}
