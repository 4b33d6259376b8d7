package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

const sqlTimeout = 15

func mysqlDSN(creds map[string]string) string {
	port := creds["port"]
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		creds["username"], creds["password"], creds["host"], port, creds["database"])
}

func postgresDSN(creds map[string]string) string {
	port := creds["port"]
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		creds["username"], creds["password"], creds["host"], port, creds["database"])
}

func sourceQuery(source store.SourceConfig) string {
	if source.Query != "" {
		return source.Query
	}
	table := source.Table
	if table == "" {
		table = "table"
	}
	return "SELECT * FROM " + table
}

func fetchSQLRows(ctx context.Context, driverName, dsn, query string) (Table, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	defer rows.Close()

	return scanRowsToTable(rows)
}

func streamSQLRows(ctx context.Context, driverName, dsn, query string, chunkSize int, yield Yield) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return relayerrors.QueryFailed(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return relayerrors.QueryFailed(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return relayerrors.QueryFailed(err)
	}

	chunk := make([]map[string]interface{}, 0, chunkSize)
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return relayerrors.QueryFailed(err)
		}
		chunk = append(chunk, row)
		if len(chunk) == chunkSize {
			if err := yield(Table{Columns: columns, Rows: chunk}); err != nil {
				return err
			}
			chunk = make([]map[string]interface{}, 0, chunkSize)
		}
	}
	if err := rows.Err(); err != nil {
		return relayerrors.QueryFailed(err)
	}
	if len(chunk) > 0 {
		return yield(Table{Columns: columns, Rows: chunk})
	}
	return nil
}

func scanRowsToTable(rows *sql.Rows) (Table, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	var out []map[string]interface{}
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return Table{}, relayerrors.QueryFailed(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	return Table{Columns: columns, Rows: out}, nil
}

func scanRow(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}

func fetchMySQL(ctx context.Context, source store.SourceConfig) (Table, error) {
	return fetchSQLRows(ctx, "mysql", mysqlDSN(source.Credentials), sourceQuery(source))
}

func streamMySQL(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	return streamSQLRows(ctx, "mysql", mysqlDSN(source.Credentials), sourceQuery(source), chunkSize, yield)
}

func fetchPostgresSource(ctx context.Context, source store.SourceConfig) (Table, error) {
	return fetchSQLRows(ctx, "postgres", postgresDSN(source.Credentials), sourceQuery(source))
}

func streamPostgresSource(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	return streamSQLRows(ctx, "postgres", postgresDSN(source.Credentials), sourceQuery(source), chunkSize, yield)
}
