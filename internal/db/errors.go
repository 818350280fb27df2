package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Describe renders err with the Postgres diagnostic fields when it carries them.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", pgErr.Severity, pgErr.Code, pgErr.Message)
	for _, f := range []struct{ name, val string }{
		{"detail", pgErr.Detail},
		{"hint", pgErr.Hint},
		{"where", pgErr.Where},
		{"schema", pgErr.SchemaName},
		{"table", pgErr.TableName},
		{"constraint", pgErr.ConstraintName},
	} {
		if f.val != "" {
			fmt.Fprintf(&b, " %s=%q", f.name, f.val)
		}
	}
	return b.String()
}
