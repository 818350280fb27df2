package schema

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeConn struct {
	// tableSets are returned by successive existing-table queries; the last repeats.
	tableSets  [][]string
	queryErr   error
	queries    int
	beginErr   error
	tx         *fakeTx
	directExec []string
}

func (f *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.directExec = append(f.directExec, sql)
	return pgconn.NewCommandTag("EXEC 1"), nil
}

func (f *fakeConn) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	f.queries++
	if f.queryErr != nil {
		return fakeRow{err: f.queryErr}
	}
	if len(f.tableSets) == 0 {
		return fakeRow{tables: []string{}}
	}
	i := min(f.queries-1, len(f.tableSets)-1)
	return fakeRow{tables: f.tableSets[i]}
}

func (f *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}

type fakeRow struct {
	tables []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return errors.New("scan arity mismatch")
	}
	d, ok := dest[0].(*[]string)
	if !ok {
		return errors.New("unsupported scan type")
	}
	*d = append([]string(nil), r.tables...)
	return nil
}

type fakeTx struct {
	execFn        func(sql string) error
	execs         []string
	commitErr     error
	commits       int
	rollbackCalls int
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}
func (t *fakeTx) Rollback(context.Context) error {
	t.rollbackCalls++
	return nil
}
func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if t.execFn != nil {
		if err := t.execFn(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}
func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: errors.New("not implemented")}
}
func (t *fakeTx) Conn() *pgx.Conn { return nil }
