package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db DB) error {
	const op = "postgres.Migrate"

	if _, err := db.Exec(ctx, schema); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
