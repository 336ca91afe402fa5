package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Provider supplies column metadata for a table. The draft core only reads
// the returned snapshot; it never mutates or refetches it.
type Provider interface {
	TableMeta(ctx context.Context, tableName string) (TableMeta, error)
}

var errMissingPool = errors.New("meta: connection pool is required")

// PostgresProvider introspects information_schema to build TableMeta
// snapshots for remote Postgres-backed databases.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresProvider constructs a provider over an established pool.
func NewPostgresProvider(pool *pgxpool.Pool, logger *zap.Logger) (*PostgresProvider, error) {
	if pool == nil {
		return nil, errMissingPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresProvider{pool: pool, logger: logger}, nil
}

const columnsQuery = `
SELECT
	c.column_name,
	c.data_type,
	c.udt_name
FROM information_schema.columns c
WHERE c.table_schema = 'public' AND c.table_name = $1
ORDER BY c.ordinal_position;
`

const foreignKeysQuery = `
SELECT
	kcu.column_name,
	ccu.table_name AS foreign_table_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
	ON tc.constraint_name = kcu.constraint_name
	AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage AS ccu
	ON ccu.constraint_name = tc.constraint_name
	AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
	AND tc.table_schema = 'public'
	AND tc.table_name = $1;
`

// TableMeta introspects the columns and foreign keys of a table and returns
// the metadata snapshot the draft core consumes, fingerprint included.
func (provider *PostgresProvider) TableMeta(ctx context.Context, tableName string) (TableMeta, error) {
	columnOrder, fields, err := provider.introspectColumns(ctx, tableName)
	if err != nil {
		return TableMeta{}, fmt.Errorf("introspecting columns for %s: %w", tableName, err)
	}

	relations, err := provider.introspectRelations(ctx, tableName)
	if err != nil {
		return TableMeta{}, fmt.Errorf("introspecting foreign keys for %s: %w", tableName, err)
	}

	snapshot := TableMeta{
		ColumnOrder: columnOrder,
		Fields:      fields,
		Relations:   relations,
		Version:     ComputeVersion(columnOrder, fields, relations),
	}
	provider.logger.Debug("table metadata introspected",
		zap.String("table", tableName),
		zap.Int("columns", len(columnOrder)),
		zap.Int("relations", len(relations)),
		zap.String("version", snapshot.Version))
	return snapshot, nil
}

func (provider *PostgresProvider) introspectColumns(ctx context.Context, tableName string) ([]string, map[string]FieldType, error) {
	rows, err := provider.pool.Query(ctx, columnsQuery, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columnOrder := make([]string, 0, 16)
	fields := make(map[string]FieldType, 16)
	for rows.Next() {
		var columnName, dataType, udtName string
		if err := rows.Scan(&columnName, &dataType, &udtName); err != nil {
			return nil, nil, err
		}
		isArray := dataType == "ARRAY" || strings.HasPrefix(udtName, "_")
		field := FieldType{
			IsArray: isArray,
			PgType:  strings.ToLower(dataType),
			PgAlias: strings.TrimPrefix(strings.ToLower(udtName), "_"),
		}
		if isArray {
			field.Subtype = strings.TrimPrefix(strings.ToLower(udtName), "_")
		}
		columnOrder = append(columnOrder, columnName)
		fields[columnName] = field
	}
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}
	return columnOrder, fields, nil
}

func (provider *PostgresProvider) introspectRelations(ctx context.Context, tableName string) (map[string]Relation, error) {
	rows, err := provider.pool.Query(ctx, foreignKeysQuery, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	relations := make(map[string]Relation)
	for rows.Next() {
		var columnName, foreignTable string
		if err := rows.Scan(&columnName, &foreignTable); err != nil {
			return nil, err
		}
		relations[columnName] = Relation{
			Kind:            RelationBelongsTo,
			RelatedTable:    foreignTable,
			RelationField:   displayFieldFor(columnName),
			ForeignKeyField: columnName,
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return relations, nil
}

// displayFieldFor derives the grid's label column name from a foreign key
// column, mirroring the naming convention of the console's GraphQL layer.
func displayFieldFor(foreignKeyColumn string) string {
	if trimmed, ok := strings.CutSuffix(foreignKeyColumn, "_id"); ok && trimmed != "" {
		return trimmed
	}
	if trimmed, ok := strings.CutSuffix(foreignKeyColumn, "Id"); ok && trimmed != "" {
		return trimmed
	}
	return foreignKeyColumn
}
