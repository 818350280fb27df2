// Package grants gives an application's service principal runtime access to the chat
// tables: schema USAGE plus row-level DML, never DDL.
package grants

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lakechat/internal/db"
)

// ErrGrant wraps a failed GRANT statement.
var ErrGrant = errors.New("grant failed")

// Schema is the schema the chat tables live in.
const Schema = "public"

// TablePrivileges is the fixed privilege set granted on each table.
var TablePrivileges = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

// Execer runs a single statement.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SchemaUsageSQL returns the schema grant statement for principal.
func SchemaUsageSQL(principal string) string {
	return fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s",
		pgx.Identifier{Schema}.Sanitize(), pgx.Identifier{principal}.Sanitize())
}

// TablePrivilegesSQL returns the table grant statement for one table.
func TablePrivilegesSQL(database, principal, table string) string {
	return fmt.Sprintf("GRANT %s ON TABLE %s TO %s",
		strings.Join(TablePrivileges, ", "),
		pgx.Identifier{database, Schema, table}.Sanitize(),
		pgx.Identifier{principal}.Sanitize())
}

// GrantSchemaUsage grants USAGE on the public schema to principal.
func GrantSchemaUsage(ctx context.Context, conn Execer, principal string) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrGrant)
	}
	if _, err := conn.Exec(ctx, SchemaUsageSQL(principal)); err != nil {
		log.Printf("grants: schema usage for %q: %s", principal, db.Describe(err))
		return fmt.Errorf("%w: schema %s: %w", ErrGrant, Schema, err)
	}
	log.Printf("grants: granted schema usage on %s to %q", Schema, principal)
	return nil
}

// TableError is a failed grant on one table.
type TableError struct {
	Table string
	Err   error
}

func (e TableError) Error() string { return e.Table + ": " + e.Err.Error() }
func (e TableError) Unwrap() error { return e.Err }

// Report is the outcome of a table grant batch.
type Report struct {
	Granted []string
	Failed  []TableError
}

// Err joins the per-table failures, or returns nil when every grant succeeded.
func (r *Report) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// GrantTablePrivileges grants TablePrivileges on each table to principal, one statement per
// table. A failure on one table is recorded and the batch moves on.
func GrantTablePrivileges(ctx context.Context, conn Execer, database, principal string, tables []string) *Report {
	r := &Report{}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, TablePrivilegesSQL(database, principal, table)); err != nil {
			log.Printf("grants: table %s: %s", table, db.Describe(err))
			r.Failed = append(r.Failed, TableError{Table: table, Err: fmt.Errorf("%w: %w", ErrGrant, err)})
			continue
		}
		log.Printf("grants: granted table permissions for %s", table)
		r.Granted = append(r.Granted, table)
	}
	return r
}
