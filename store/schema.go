package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates the canonical tables if they do not exist yet.
// Production deployments run migrations instead; this covers tests, the
// example, and first-boot development databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Location)(nil),
		(*Shelf)(nil),
		(*Box)(nil),
		(*Item)(nil),
		(*ItemProperty)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
