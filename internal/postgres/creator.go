package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	errMissingPool      = errors.New("postgres: connection pool is required")
	errInvalidTableName = errors.New("postgres: invalid table name")

	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Creator persists draft payloads as real rows in a remote Postgres-backed
// database, returning the created row with its server-assigned identity.
type Creator struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewCreator constructs a row creator over an established pool.
func NewCreator(pool *pgxpool.Pool, logger *zap.Logger) (*Creator, error) {
	if pool == nil {
		return nil, errMissingPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{pool: pool, logger: logger}, nil
}

// CreateRow inserts one payload into the destination table and scans the
// created row back as a generic column map.
func (c *Creator) CreateRow(ctx context.Context, tableName string, payload map[string]interface{}) (map[string]interface{}, error) {
	if !identifierPattern.MatchString(tableName) {
		return nil, fmt.Errorf("%w: %q", errInvalidTableName, tableName)
	}

	columns := make([]string, 0, len(payload))
	for column := range payload {
		if !identifierPattern.MatchString(column) {
			return nil, fmt.Errorf("postgres: invalid column name %q", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	statement, arguments := buildInsert(tableName, columns, payload)
	rows, err := c.pool.Query(ctx, statement, arguments...)
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", tableName, err)
	}
	defer rows.Close()

	createdRow, err := scanCreatedRow(rows)
	if err != nil {
		return nil, fmt.Errorf("reading created row from %s: %w", tableName, err)
	}

	c.logger.Debug("row created",
		zap.String("table", tableName),
		zap.Int("columns", len(columns)))
	return createdRow, nil
}

func buildInsert(tableName string, columns []string, payload map[string]interface{}) (string, []interface{}) {
	if len(columns) == 0 {
		return fmt.Sprintf(`INSERT INTO %q DEFAULT VALUES RETURNING *`, tableName), nil
	}

	quoted := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	arguments := make([]interface{}, 0, len(columns))
	for index, column := range columns {
		quoted = append(quoted, fmt.Sprintf("%q", column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", index+1))
		arguments = append(arguments, payload[column])
	}
	statement := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) RETURNING *`,
		tableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return statement, arguments
}

func scanCreatedRow(rows pgx.Rows) (map[string]interface{}, error) {
	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, errors.New("insert returned no row")
	}

	values, err := rows.Values()
	if err != nil {
		return nil, err
	}

	descriptions := rows.FieldDescriptions()
	createdRow := make(map[string]interface{}, len(descriptions))
	for index, description := range descriptions {
		createdRow[description.Name] = values[index]
	}
	rows.Close()
	return createdRow, rows.Err()
}
