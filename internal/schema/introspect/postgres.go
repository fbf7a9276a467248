package introspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/zero-models/zerogen/internal/schema"
)

// PostgresExtractor introspects a live PostgreSQL database. It reads
// information_schema and the pg_catalog enum/index tables, so it needs only
// read access to the target schema.
type PostgresExtractor struct {
	conn       *pgx.Conn
	schemaName string
}

// NewPostgresExtractor connects to the database and verifies the connection
// with a ping. An empty schemaName selects "public".
func NewPostgresExtractor(ctx context.Context, connString, schemaName string) (*PostgresExtractor, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresExtractor{conn: conn, schemaName: schemaName}, nil
}

// NewPostgresExtractorWithConn wraps an existing connection, which stays
// owned by the caller. The polymorphic discover command uses this to share
// one connection between extraction and its count queries.
func NewPostgresExtractorWithConn(conn *pgx.Conn, schemaName string) *PostgresExtractor {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresExtractor{conn: conn, schemaName: schemaName}
}

// Close releases the underlying connection.
func (e *PostgresExtractor) Close(ctx context.Context) error {
	return e.conn.Close(ctx)
}

// ExtractSchema reads tables, columns, enum types, foreign keys, indexes,
// and check constraints, and assembles them into generator schema data.
// Column types leave this method already normalized into the Rails
// vocabulary; relationships and patterns are derived, not read.
func (e *PostgresExtractor) ExtractSchema(ctx context.Context) (*schema.SchemaData, error) {
	names, err := e.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	data := &schema.SchemaData{
		Tables:      []schema.Table{},
		Indexes:     make(map[string][]schema.Index),
		Constraints: make(map[string][]schema.Constraint),
	}
	var fks []foreignKey
	unique := make(map[string]map[string]bool)

	// Column positions of USER-DEFINED columns, keyed by table then by the
	// pg type name. Resolved against pg_enum after all tables are read.
	userDefined := make(map[string]map[string][]int)

	for _, name := range names {
		cols, udts, err := e.extractColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting columns for %s: %w", name, err)
		}
		data.Tables = append(data.Tables, schema.Table{Name: name, Columns: cols})
		if len(udts) > 0 {
			userDefined[name] = udts
		}

		tableFKs, err := e.extractForeignKeys(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting foreign keys for %s: %w", name, err)
		}
		fks = append(fks, tableFKs...)

		indexes, err := e.extractIndexes(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting indexes for %s: %w", name, err)
		}
		if len(indexes) > 0 {
			data.Indexes[name] = indexes
			recordUnique(unique, name, indexes)
		}

		checks, err := e.extractCheckConstraints(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("extracting constraints for %s: %w", name, err)
		}
		if len(checks) > 0 {
			data.Constraints[name] = checks
		}
	}

	if err := e.resolveEnums(ctx, data, userDefined); err != nil {
		return nil, fmt.Errorf("resolving enum types: %w", err)
	}

	data.Relationships = deriveRelationships(data.Tables, fks, unique)
	data.Patterns = detectPatterns(data.Tables)
	return data, nil
}

func (e *PostgresExtractor) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName)
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

// extractColumns returns the table's columns in ordinal order plus the
// positions of USER-DEFINED columns keyed by their pg type name. Those
// columns keep the raw type name until resolveEnums decides whether they
// are enums.
func (e *PostgresExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, map[string][]int, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.udt_name,
			col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position)
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	udts := make(map[string][]int)

	for rows.Next() {
		var name, dataType, nullable, udtName string
		var defaultVal, comment *string

		if err := rows.Scan(&name, &dataType, &nullable, &defaultVal, &udtName, &comment); err != nil {
			return nil, nil, err
		}

		col := schema.Column{
			Name:     name,
			Nullable: nullable == "YES",
			Default:  defaultVal,
		}
		if comment != nil {
			col.Comment = *comment
		}

		if strings.EqualFold(dataType, "USER-DEFINED") {
			col.Type = udtName
			udts[udtName] = append(udts[udtName], len(cols))
		} else {
			col.Type = normalizePostgresType(dataType, udtName)
		}

		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, udts, nil
}

// resolveEnums fetches labels for every user-defined type seen during column
// extraction and rewrites matching columns as string enums. Types with no
// pg_enum rows (domains, composites) keep their raw name and surface as
// unknown-type warnings downstream.
func (e *PostgresExtractor) resolveEnums(ctx context.Context, data *schema.SchemaData, userDefined map[string]map[string][]int) error {
	typeNames := make(map[string]bool)
	for _, udts := range userDefined {
		for udt := range udts {
			typeNames[udt] = true
		}
	}
	if len(typeNames) == 0 {
		return nil
	}

	names := make([]string, 0, len(typeNames))
	for name := range typeNames {
		names = append(names, name)
	}
	sort.Strings(names)

	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1 AND t.typname = ANY($2)
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	values := make(map[string][]string)
	for rows.Next() {
		var typname, label string
		if err := rows.Scan(&typname, &label); err != nil {
			return err
		}
		values[typname] = append(values[typname], label)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range data.Tables {
		table := &data.Tables[i]
		for udt, positions := range userDefined[table.Name] {
			labels, ok := values[udt]
			if !ok {
				continue
			}
			for _, pos := range positions {
				col := &table.Columns[pos]
				col.Type = "string"
				col.Enum = true
				col.EnumValues = labels
			}
		}
	}
	return nil
}

func (e *PostgresExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]foreignKey, error) {
	query := `
		SELECT
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.column_name
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		fk := foreignKey{Table: tableName}
		if err := rows.Scan(&fk.Column, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (e *PostgresExtractor) extractIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// extractCheckConstraints reads CHECK constraints, skipping the implicit
// NOT NULL checks postgres exposes through information_schema.
func (e *PostgresExtractor) extractCheckConstraints(ctx context.Context, tableName string) ([]schema.Constraint, error) {
	query := `
		SELECT tc.constraint_name, cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
			ON tc.constraint_name = cc.constraint_name
			AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.table_schema = $1
			AND tc.table_name = $2
			AND tc.constraint_type = 'CHECK'
			AND cc.check_clause NOT LIKE '%IS NOT NULL'
		ORDER BY tc.constraint_name
	`

	rows, err := e.conn.Query(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []schema.Constraint
	for rows.Next() {
		c := schema.Constraint{Kind: "check"}
		if err := rows.Scan(&c.Name, &c.Expression); err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

// recordUnique marks single-column unique indexes so relationship derivation
// can tell has_one from has_many.
func recordUnique(unique map[string]map[string]bool, tableName string, indexes []schema.Index) {
	for _, idx := range indexes {
		if !idx.Unique || len(idx.Columns) != 1 {
			continue
		}
		if unique[tableName] == nil {
			unique[tableName] = make(map[string]bool)
		}
		unique[tableName][idx.Columns[0]] = true
	}
}

// normalizePostgresType maps an information_schema data_type into the Rails
// column vocabulary. Array columns report data_type ARRAY with the element
// type in udt_name behind a leading underscore; they normalize to their
// element type.
func normalizePostgresType(dataType, udtName string) string {
	switch strings.ToLower(dataType) {
	case "character varying", "character", "citext":
		return "string"
	case "text":
		return "text"
	case "smallint", "integer":
		return "integer"
	case "bigint":
		return "bigint"
	case "numeric", "money":
		return "decimal"
	case "real", "double precision":
		return "float"
	case "boolean":
		return "boolean"
	case "timestamp without time zone", "timestamp with time zone":
		return "datetime"
	case "date":
		return "date"
	case "time without time zone", "time with time zone":
		return "time"
	case "interval":
		return "string"
	case "json":
		return "json"
	case "jsonb":
		return "jsonb"
	case "uuid":
		return "uuid"
	case "bytea":
		return "binary"
	case "inet", "cidr", "macaddr":
		return "string"
	case "array":
		return normalizeUdtName(strings.TrimPrefix(udtName, "_"))
	}
	return strings.ToLower(dataType)
}

// normalizeUdtName maps pg internal type names (the udt_name column) the way
// normalizePostgresType maps SQL standard names. Used for array elements.
func normalizeUdtName(udt string) string {
	switch strings.ToLower(udt) {
	case "varchar", "bpchar", "citext":
		return "string"
	case "text":
		return "text"
	case "int2", "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "numeric":
		return "decimal"
	case "float4", "float8":
		return "float"
	case "bool":
		return "boolean"
	case "timestamp", "timestamptz":
		return "datetime"
	case "date":
		return "date"
	case "time", "timetz":
		return "time"
	case "json":
		return "json"
	case "jsonb":
		return "jsonb"
	case "uuid":
		return "uuid"
	case "bytea":
		return "binary"
	}
	return strings.ToLower(udt)
}
