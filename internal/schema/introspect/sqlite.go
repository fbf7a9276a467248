package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zero-models/zerogen/internal/schema"
)

// SQLiteExtractor introspects a SQLite database file through PRAGMA
// statements. SQLite declared types are free-form, so normalization follows
// the engine's affinity rules plus the names Rails migrations emit.
type SQLiteExtractor struct {
	db *sql.DB
}

// NewSQLiteExtractor opens the database file and verifies it with a ping.
func NewSQLiteExtractor(ctx context.Context, path string) (*SQLiteExtractor, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return &SQLiteExtractor{db: db}, nil
}

// NewSQLiteExtractorWithDB wraps an existing connection. Tests use this with
// a mock driver.
func NewSQLiteExtractorWithDB(db *sql.DB) *SQLiteExtractor {
	return &SQLiteExtractor{db: db}
}

// Close releases the underlying connection pool.
func (e *SQLiteExtractor) Close() error {
	return e.db.Close()
}

// ExtractSchema walks every user table with PRAGMA table_info,
// foreign_key_list, and index_list, and assembles the results into generator
// schema data.
func (e *SQLiteExtractor) ExtractSchema(ctx context.Context) (*schema.SchemaData, error) {
	names, err := e.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	data := &schema.SchemaData{
		Tables:  []schema.Table{},
		Indexes: make(map[string][]schema.Index),
	}
	var fks []foreignKey
	unique := make(map[string]map[string]bool)

	for _, name := range names {
		cols, err := e.extractColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting columns for %s: %w", name, err)
		}
		data.Tables = append(data.Tables, schema.Table{Name: name, Columns: cols})

		tableFKs, err := e.extractForeignKeys(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting foreign keys for %s: %w", name, err)
		}
		fks = append(fks, tableFKs...)

		indexes, uniqueCols, err := e.extractIndexes(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting indexes for %s: %w", name, err)
		}
		if len(indexes) > 0 {
			data.Indexes[name] = indexes
		}
		if len(uniqueCols) > 0 {
			unique[name] = uniqueCols
		}
	}

	data.Relationships = deriveRelationships(data.Tables, fks, unique)
	data.Patterns = detectPatterns(data.Tables)
	return data, nil
}

func (e *SQLiteExtractor) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (e *SQLiteExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	rows, err := e.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(tableName)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, declType string
		var defaultVal sql.NullString

		if err := rows.Scan(&cid, &name, &declType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}

		col := schema.Column{
			Name:     name,
			Type:     normalizeSQLiteType(declType),
			Nullable: notNull == 0 && pk == 0,
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// extractForeignKeys reads PRAGMA foreign_key_list. The target column is
// NULL when the key references the parent's implicit primary key; Rails
// schemas name that column id.
func (e *SQLiteExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]foreignKey, error) {
	rows, err := e.db.QueryContext(ctx, "PRAGMA foreign_key_list("+quoteIdent(tableName)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete, match string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk := foreignKey{
			Table:        tableName,
			Column:       fromCol,
			TargetTable:  targetTable,
			TargetColumn: "id",
		}
		if toCol.Valid {
			fk.TargetColumn = toCol.String
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// extractIndexes reads PRAGMA index_list plus index_info for each entry.
// Auto-generated indexes (UNIQUE constraints in the table definition) still
// count toward uniqueness but are not reported as indexes, matching how the
// snapshot format treats them.
func (e *SQLiteExtractor) extractIndexes(ctx context.Context, tableName string) ([]schema.Index, map[string]bool, error) {
	rows, err := e.db.QueryContext(ctx, "PRAGMA index_list("+quoteIdent(tableName)+")")
	if err != nil {
		return nil, nil, err
	}

	type indexEntry struct {
		name   string
		unique bool
		auto   bool
	}
	var entries []indexEntry
	for rows.Next() {
		var seq, uniqueFlag, partial int
		var name, origin string

		if err := rows.Scan(&seq, &name, &uniqueFlag, &origin, &partial); err != nil {
			rows.Close()
			return nil, nil, err
		}
		entries = append(entries, indexEntry{
			name:   name,
			unique: uniqueFlag == 1,
			auto:   strings.HasPrefix(name, "sqlite_autoindex"),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	var indexes []schema.Index
	uniqueCols := make(map[string]bool)

	for _, entry := range entries {
		columns, err := e.indexColumns(ctx, entry.name)
		if err != nil {
			return nil, nil, err
		}

		if entry.unique && len(columns) == 1 {
			uniqueCols[columns[0]] = true
		}
		if entry.auto {
			continue
		}
		indexes = append(indexes, schema.Index{
			Name:    entry.name,
			Columns: columns,
			Unique:  entry.unique,
		})
	}

	if len(uniqueCols) == 0 {
		uniqueCols = nil
	}
	return indexes, uniqueCols, nil
}

func (e *SQLiteExtractor) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, "PRAGMA index_info("+quoteIdent(indexName)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString

		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		// Expression index members have no column name.
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

// quoteIdent wraps an identifier for PRAGMA statements, which do not accept
// bound parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// normalizeSQLiteType maps a declared column type into the Rails vocabulary.
// Matching is by substring in affinity-rule order since SQLite accepts any
// declared type text.
func normalizeSQLiteType(declType string) string {
	d := strings.ToUpper(strings.TrimSpace(declType))
	switch {
	case d == "":
		return "binary"
	case strings.Contains(d, "BOOL") || strings.HasPrefix(d, "TINYINT(1)"):
		return "boolean"
	case strings.Contains(d, "BIGINT") || strings.Contains(d, "BIG INT"):
		return "bigint"
	case strings.Contains(d, "INT"):
		return "integer"
	case strings.Contains(d, "DATETIME") || strings.Contains(d, "TIMESTAMP"):
		return "datetime"
	case strings.Contains(d, "DATE"):
		return "date"
	case strings.Contains(d, "TIME"):
		return "time"
	case strings.Contains(d, "DECIMAL") || strings.Contains(d, "NUMERIC"):
		return "decimal"
	case strings.Contains(d, "REAL") || strings.Contains(d, "FLOA") || strings.Contains(d, "DOUB"):
		return "float"
	case strings.Contains(d, "JSON"):
		return "json"
	case strings.Contains(d, "UUID"):
		return "uuid"
	case strings.Contains(d, "BLOB") || strings.Contains(d, "BINARY"):
		return "binary"
	case strings.Contains(d, "CLOB") || strings.Contains(d, "TEXT"):
		return "text"
	case strings.Contains(d, "CHAR") || strings.Contains(d, "STRING"):
		return "string"
	}
	return strings.ToLower(declType)
}
