package mysql

import (
	"context"
	_ "embed"
	"strings"
)

//go:embed schema.sql
var schema string

// statements splits schema on statement terminators; the driver runs one
// statement per call unless multiStatements is enabled.
func statements(src string) []string {
	var out []string
	for _, s := range strings.Split(src, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func Migrate(ctx context.Context, db DB) error {
	const op = "mysql.Migrate"

	for _, stmt := range statements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}
