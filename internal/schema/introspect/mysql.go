package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/zero-models/zerogen/internal/schema"
)

// MySQLExtractor introspects a live MySQL or MariaDB database through
// information_schema.
type MySQLExtractor struct {
	db         *sql.DB
	schemaName string
}

// NewMySQLExtractor opens a connection and verifies it with a ping. An empty
// schemaName uses the database selected by the DSN.
func NewMySQLExtractor(ctx context.Context, dsn, schemaName string) (*MySQLExtractor, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}

	if schemaName == "" {
		var current sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&current); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("resolving current database: %w", err)
		}
		if !current.Valid || current.String == "" {
			_ = db.Close()
			return nil, fmt.Errorf("mysql dsn selects no database and no schema name was given")
		}
		schemaName = current.String
	}

	return &MySQLExtractor{db: db, schemaName: schemaName}, nil
}

// NewMySQLExtractorWithDB wraps an existing connection. Tests use this with
// a mock driver.
func NewMySQLExtractorWithDB(db *sql.DB, schemaName string) *MySQLExtractor {
	return &MySQLExtractor{db: db, schemaName: schemaName}
}

// Close releases the underlying connection pool.
func (e *MySQLExtractor) Close() error {
	return e.db.Close()
}

// ExtractSchema reads tables, columns, foreign keys, and indexes and
// assembles them into generator schema data. Enum columns are parsed out of
// the column_type literal since MySQL has no separate enum catalog.
func (e *MySQLExtractor) ExtractSchema(ctx context.Context) (*schema.SchemaData, error) {
	names, err := e.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	data := &schema.SchemaData{
		Tables:  []schema.Table{},
		Indexes: make(map[string][]schema.Index),
	}
	unique := make(map[string]map[string]bool)

	for _, name := range names {
		cols, err := e.extractColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting columns for %s: %w", name, err)
		}
		data.Tables = append(data.Tables, schema.Table{Name: name, Columns: cols})
	}

	fks, err := e.extractForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting foreign keys: %w", err)
	}

	indexes, err := e.extractIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting indexes: %w", err)
	}
	for tableName, tableIndexes := range indexes {
		data.Indexes[tableName] = tableIndexes
		recordUnique(unique, tableName, tableIndexes)
	}

	data.Relationships = deriveRelationships(data.Tables, fks, unique)
	data.Patterns = detectPatterns(data.Tables)
	return data, nil
}

func (e *MySQLExtractor) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.db.QueryContext(ctx, query, e.schemaName)
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

func (e *MySQLExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := `
		SELECT column_name, data_type, column_type, is_nullable, column_default, column_comment
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := e.db.QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var name, dataType, columnType, nullable, comment string
		var defaultVal sql.NullString

		if err := rows.Scan(&name, &dataType, &columnType, &nullable, &defaultVal, &comment); err != nil {
			return nil, err
		}

		col := schema.Column{
			Name:     name,
			Type:     normalizeMySQLType(dataType, columnType),
			Nullable: nullable == "YES",
			Comment:  comment,
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}

		if strings.EqualFold(dataType, "enum") {
			values, err := parseMySQLEnum(columnType)
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", tableName, name, err)
			}
			col.Type = "string"
			col.Enum = true
			col.EnumValues = values
		}

		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (e *MySQLExtractor) extractForeignKeys(ctx context.Context) ([]foreignKey, error) {
	query := `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND referenced_table_name IS NOT NULL
		ORDER BY table_name, ordinal_position
	`

	rows, err := e.db.QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (e *MySQLExtractor) extractIndexes(ctx context.Context) (map[string][]schema.Index, error) {
	query := `
		SELECT
			s.table_name,
			s.index_name,
			s.non_unique = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ? AND s.index_name != 'PRIMARY'
		GROUP BY s.table_name, s.index_name, s.non_unique
		ORDER BY s.table_name, s.index_name
	`

	rows, err := e.db.QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make(map[string][]schema.Index)
	for rows.Next() {
		var tableName, columnNames string
		var idx schema.Index
		var isUnique int

		if err := rows.Scan(&tableName, &idx.Name, &isUnique, &columnNames); err != nil {
			return nil, err
		}
		idx.Unique = isUnique == 1
		idx.Columns = strings.Split(columnNames, ",")

		indexes[tableName] = append(indexes[tableName], idx)
	}
	return indexes, rows.Err()
}

// parseMySQLEnum extracts the labels from a column_type literal of the form
// enum('a','b','c'). Embedded quotes arrive doubled and are unescaped.
func parseMySQLEnum(columnType string) ([]string, error) {
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if !strings.HasPrefix(strings.ToLower(columnType), "enum(") || start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("invalid enum type literal: %s", columnType)
	}

	var values []string
	for _, part := range strings.Split(columnType[start+1:end], ",") {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && part[0] == '\'' && part[len(part)-1] == '\'' {
			part = part[1 : len(part)-1]
		}
		values = append(values, strings.ReplaceAll(part, "''", "'"))
	}
	return values, nil
}

// normalizeMySQLType maps an information_schema data_type into the Rails
// column vocabulary. column_type disambiguates tinyint(1), which MySQL uses
// for booleans.
func normalizeMySQLType(dataType, columnType string) string {
	switch strings.ToLower(dataType) {
	case "varchar", "char":
		return "string"
	case "text", "tinytext", "mediumtext", "longtext":
		return "text"
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return "boolean"
		}
		return "integer"
	case "smallint", "mediumint", "int":
		return "integer"
	case "bigint":
		return "bigint"
	case "decimal", "numeric":
		return "decimal"
	case "float", "double":
		return "float"
	case "datetime", "timestamp":
		return "datetime"
	case "date":
		return "date"
	case "time":
		return "time"
	case "year":
		return "integer"
	case "json":
		return "json"
	case "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary", "bit":
		return "binary"
	case "enum", "set":
		return "string"
	}
	return strings.ToLower(dataType)
}
