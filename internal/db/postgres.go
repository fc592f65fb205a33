// Package db wraps PostgreSQL connectivity for the rest of the engine.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shem-sql/shem/internal/schema"
)

// PostgresClient manages one connection to PostgreSQL. Connections are
// scoped to a single operation and never shared across operations.
type PostgresClient struct {
	conn *pgx.Conn
	url  string
}

// NewPostgresClient connects and verifies the connection.
func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, &schema.ConnectionError{URL: connString, Err: err}
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, &schema.ConnectionError{URL: connString, Err: err}
	}

	return &PostgresClient{conn: conn, url: connString}, nil
}

// Close closes the database connection.
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Conn returns the underlying connection.
func (c *PostgresClient) Conn() *pgx.Conn {
	return c.conn
}

// URL returns the connection string this client was opened with.
func (c *PostgresClient) URL() string {
	return c.url
}

// Execute runs a statement that returns no rows.
func (c *PostgresClient) Execute(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

// WithPort rewrites the connection string's port, for shadow databases
// hosted on a different server port than the target.
func WithPort(connString string, port int) (string, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}
	if int(cfg.Port) == port {
		return connString, nil
	}
	old := fmt.Sprintf(":%d/", cfg.Port)
	replacement := fmt.Sprintf(":%d/", port)
	if strings.Contains(connString, old) {
		return strings.Replace(connString, old, replacement, 1), nil
	}
	// No explicit port in the string; splice one in after the host.
	slash := strings.LastIndexByte(connString, '/')
	if slash <= strings.Index(connString, "//")+1 {
		return "", fmt.Errorf("connection string %q has no database component", connString)
	}
	return connString[:slash] + fmt.Sprintf(":%d", port) + connString[slash:], nil
}

// WithDatabase rewrites the connection string's database component. Used to
// reach the administrative database and transient shadow databases on the
// same server.
func WithDatabase(connString, database string) (string, error) {
	base := connString
	query := ""
	if i := strings.Index(base, "?"); i >= 0 {
		query = base[i:]
		base = base[:i]
	}
	slash := strings.LastIndexByte(base, '/')
	if slash <= strings.Index(base, "//")+1 {
		return "", fmt.Errorf("connection string %q has no database component", connString)
	}
	rebuilt := base[:slash+1] + database + query
	if _, err := pgx.ParseConfig(rebuilt); err != nil {
		return "", fmt.Errorf("rewriting database in connection string: %w", err)
	}
	return rebuilt, nil
}
