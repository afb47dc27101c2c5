package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/userstream/internal/errs"
)

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

const columnsQuery = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = %s
		  AND table_name   = %s
		ORDER BY ordinal_position`

// SplitTable separates an optional schema qualifier from a table name.
// "app.user_data" yields ("app", "user_data"); "user_data" yields
// ("", "user_data").
func SplitTable(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// TableColumns returns the columns of table in ordinal order. An
// unqualified table is looked up in the connection's current schema, a
// qualified one ("schema.table") in the named schema. A table that does
// not exist yields an empty slice and no error.
func TableColumns(ctx context.Context, conn Conn, d Dialect, table string) ([]ColumnInfo, error) {
	schema, name := SplitTable(table)

	var q string
	args := []any{name}
	switch {
	case schema != "" && d == DialectPostgres:
		q = fmt.Sprintf(columnsQuery, "$1", "$2")
		args = []any{schema, name}
	case schema != "":
		q = fmt.Sprintf(columnsQuery, "?", "?")
		args = []any{schema, name}
	case d == DialectPostgres:
		q = fmt.Sprintf(columnsQuery, "current_schema()", "$1")
	default:
		q = fmt.Sprintf(columnsQuery, "DATABASE()", "?")
	}

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.WrapKeep(errs.ErrKindQueryFailed, "failed to fetch columns", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, errs.WrapKeep(errs.ErrKindQueryFailed, "failed to scan column info", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapKeep(errs.ErrKindQueryFailed, "error iterating columns", err)
	}
	return cols, nil
}
