// Package db opens scoped Postgres connections to Lakebase instances.
package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// ConnParams locate a database. The password is supplied per connection from a freshly
// minted credential and never stored here.
type ConnParams struct {
	Host     string
	Port     int
	Database string
	User     string
	SSLMode  string
}

// Validate reports missing fields.
func (p ConnParams) Validate() error {
	switch {
	case p.Host == "":
		return errors.New("db: host is required")
	case p.Port <= 0 || p.Port > 65535:
		return fmt.Errorf("db: invalid port %d", p.Port)
	case p.Database == "":
		return errors.New("db: database is required")
	case p.User == "":
		return errors.New("db: user is required")
	}
	return nil
}

// DSN returns a postgres:// URL for the params with password as the secret. User,
// password and database are escaped.
func (p ConnParams) DSN(password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted returns the DSN with the password masked, for logs.
func (p ConnParams) Redacted() string {
	u, err := url.Parse(p.DSN("xxxxx"))
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// Connect opens a single connection and pings it. The connection is closed if the ping
// fails. Caller must Close the returned connection.
func Connect(ctx context.Context, dsn string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, err
	}
	return conn, nil
}

// ServerVersion returns the result of SELECT version().
func ServerVersion(ctx context.Context, conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}) (string, error) {
	var v string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}
