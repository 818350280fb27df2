// Package schema provisions the chat history tables. Creation is all or nothing: if any
// known table already exists nothing is created, altered or dropped.
package schema

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lakechat/internal/db"
)

//go:embed sql/*.sql
var ddlFS embed.FS

// ErrProvisioning wraps any database error raised while checking or creating the schema.
var ErrProvisioning = errors.New("schema provisioning failed")

// RequiredTables are created by Ensure, in dependency order.
var RequiredTables = []string{"users", "threads", "steps", "elements", "feedbacks"}

// LegacyTables are checked for but never created. Their presence blocks creation like any
// required table.
var LegacyTables = []string{"chat_sessions"}

// Status of a provisioning run.
type Status string

const (
	StatusCreated  Status = "created"
	StatusExisting Status = "existing"
	StatusFailed   Status = "failed"
)

// Result reports what Ensure found or did.
type Result struct {
	Status  Status
	Created bool
	// Tables are the known tables present after the run, sorted.
	Tables []string
	// Missing lists required tables absent after creation. Non-empty only on a verification warning.
	Missing []string
}

// Conn is the subset of *pgx.Conn (and *pgxpool.Pool) used by the provisioner.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Statement is one embedded DDL file.
type Statement struct {
	Name string
	SQL  string
}

// Statements returns the embedded DDL in execution order.
func Statements() ([]Statement, error) {
	names, err := fs.Glob(ddlFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	out := make([]Statement, 0, len(names))
	for _, name := range names {
		b, err := ddlFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Statement{Name: strings.TrimPrefix(name, "sql/"), SQL: string(b)})
	}
	return out, nil
}

const existingTablesSQL = `SELECT COALESCE(array_agg(table_name::text ORDER BY table_name), '{}')
FROM information_schema.tables
WHERE table_schema = 'public' AND table_name = ANY($1)`

// knownTables are all names whose presence means the schema was provisioned before.
func knownTables() []string {
	return append(slices.Clone(RequiredTables), LegacyTables...)
}

// ExistingTables returns the known tables present in the public schema, sorted.
func ExistingTables(ctx context.Context, conn Conn) ([]string, error) {
	var tables []string
	if err := conn.QueryRow(ctx, existingTablesSQL, knownTables()).Scan(&tables); err != nil {
		return nil, fmt.Errorf("query existing tables: %w", err)
	}
	return tables, nil
}

// Provisioner creates the chat schema when absent.
type Provisioner struct {
	statements []Statement
}

// NewProvisioner returns a Provisioner over the embedded DDL.
func NewProvisioner() (*Provisioner, error) {
	stmts, err := Statements()
	if err != nil {
		return nil, fmt.Errorf("schema: load ddl: %w", err)
	}
	if len(stmts) == 0 {
		return nil, errors.New("schema: no ddl embedded")
	}
	return &Provisioner{statements: stmts}, nil
}

// Ensure creates the required tables only if none of the known tables exist. Database
// errors are logged with diagnostics and returned wrapped in ErrProvisioning alongside a
// result with StatusFailed.
func (p *Provisioner) Ensure(ctx context.Context, conn Conn) (*Result, error) {
	log.Printf("schema: checking existing tables")
	existing, err := ExistingTables(ctx, conn)
	if err != nil {
		return p.fail(err)
	}
	if len(existing) > 0 {
		log.Printf("schema: found existing tables: %s; skipping creation", strings.Join(existing, ", "))
		return &Result{Status: StatusExisting, Tables: existing}, nil
	}

	log.Printf("schema: no existing tables found; creating %d tables", len(RequiredTables))
	if err := p.create(ctx, conn); err != nil {
		return p.fail(err)
	}

	res := &Result{Status: StatusCreated, Created: true}
	after, err := ExistingTables(ctx, conn)
	if err != nil {
		log.Printf("schema: warning: verify after create: %s", db.Describe(err))
		res.Missing = slices.Clone(RequiredTables)
		return res, nil
	}
	res.Tables = after
	for _, t := range RequiredTables {
		if !slices.Contains(after, t) {
			res.Missing = append(res.Missing, t)
		}
	}
	if len(res.Missing) > 0 {
		log.Printf("schema: warning: tables missing after create: %s", strings.Join(res.Missing, ", "))
	} else {
		log.Printf("schema: verified tables: %s", strings.Join(after, ", "))
	}
	return res, nil
}

func (p *Provisioner) create(ctx context.Context, conn Conn) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Printf("schema: rollback: %v", rbErr)
			}
		}
	}()
	for _, s := range p.statements {
		if _, err = tx.Exec(ctx, s.SQL); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Provisioner) fail(err error) (*Result, error) {
	log.Printf("schema: error setting up schema: %s", db.Describe(err))
	return &Result{Status: StatusFailed}, fmt.Errorf("%w: %w", ErrProvisioning, err)
}
