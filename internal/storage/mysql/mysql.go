// Package mysql implements the provisioner's database access on top of
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
)

// Store owns exactly one server connection. It is not safe for concurrent
// use; the provisioner drives it from a single goroutine.
type Store struct {
	db   *sql.DB
	conn *sql.Conn

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the server described by cfg with multi-statement
// execution enabled.
func Open(ctx context.Context, cfg *mysql.Config) (*Store, error) {
	cfg = cfg.Clone()
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connector")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open connection")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "ping")
	}

	return &Store{db: db, conn: conn}, nil
}

// Exec runs query, which may contain several statements. The driver reads
// every statement's result, so an error in a later statement is reported.
func (s *Store) Exec(ctx context.Context, query string) error {
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

// Tables lists the base tables and views of the connection's current
// database, ordered by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT t.TABLE_NAME
		FROM information_schema.tables t
		WHERE t.TABLE_SCHEMA = DATABASE()
		ORDER BY t.TABLE_NAME ASC
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query information_schema")
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return tables, errors.Wrap(err, "scan row")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return tables, errors.Wrap(err, "iterate rows")
	}

	return tables, nil
}

// CountRows returns the number of rows in table. The driver error is
// returned unwrapped so callers can print it as the failure reason.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdentifier(table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the connection. Only the first call has an effect; later
// calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		connErr := s.conn.Close()
		dbErr := s.db.Close()
		switch {
		case connErr != nil && !errors.Is(connErr, sql.ErrConnDone):
			s.closeErr = errors.Wrap(connErr, "close connection")
		case dbErr != nil:
			s.closeErr = errors.Wrap(dbErr, "close database")
		}
	})
	return s.closeErr
}

// QuoteIdentifier quotes name as a MySQL identifier.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
