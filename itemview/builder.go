package itemview

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Index names created on the projection. The unique id index is the
// precondition for the non-exclusive refresh path.
const (
	uniqueIndexName = "items_complete_id_idx"
	boxIndexName    = "items_complete_box_idx"
	parentIndexName = "items_complete_parent_idx"
)

// Builder defines the item projection and owns its physical structure.
// Side effects are structural only (create/drop/refresh); it never mutates
// business data.
//
// On Postgres the projection is a materialized view refreshed with
// REFRESH MATERIALIZED VIEW, CONCURRENTLY when non-exclusive. Other dialects
// (SQLite in tests) emulate the view with a real table; the non-exclusive
// path there verifies the unique index first, mirroring the CONCURRENTLY
// precondition, then swaps rows inside a transaction so readers keep the
// prior snapshot until commit.
type Builder struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewBuilder binds the builder to a database handle.
func NewBuilder(db *bun.DB, logger zerolog.Logger) *Builder {
	return &Builder{
		db:  db,
		log: logger.With().Str("component", "itemview").Logger(),
	}
}

// Definition returns the deterministic projection query: left joins from
// items, coalescing overlapping property fields and excluding soft-deleted
// rows.
func (b *Builder) Definition() string {
	return `
SELECT
    i.id,
    i.name,
    i.description,
    i.quantity,
    i.box_id,
    b.box_number,
    b.location_id,
    l.name AS location_name,
    l.color AS location_color,
    b.shelf_id,
    s.name AS shelf_name,
    i.parent_item_id,
    pi.name AS parent_item_name,
    COALESCE(i.type, p.type) AS type,
    COALESCE(i.ean, p.ean) AS ean,
    COALESCE(i.serial_number, p.serial_number) AS serial_number,
    i.qr_code,
    i.created_at,
    i.updated_at
FROM items i
LEFT JOIN item_properties p ON p.item_id = i.id
LEFT JOIN boxes b ON b.id = i.box_id
LEFT JOIN locations l ON l.id = b.location_id
LEFT JOIN shelves s ON s.id = b.shelf_id
LEFT JOIN items pi ON pi.id = i.parent_item_id
WHERE i.deleted_at IS NULL`
}

// Create materializes the projection if it does not exist yet and ensures
// its indexes. Called once at startup.
func (b *Builder) Create(ctx context.Context) error {
	var stmt string
	if b.postgres() {
		stmt = fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s", ViewName, b.Definition())
	} else {
		stmt = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS %s", ViewName, b.Definition())
	}
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", ViewName, err)
	}
	return b.createIndexes(ctx)
}

// Rebuild drops and recreates the projection, then recreates the uniqueness
// index on item id plus the secondary indexes on container and parent
// references. This is the exclusive path: readers of the projection are
// blocked for its full duration.
func (b *Builder) Rebuild(ctx context.Context) error {
	drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", ViewName)
	create := fmt.Sprintf("CREATE TABLE %s AS %s", ViewName, b.Definition())
	if b.postgres() {
		drop = fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", ViewName)
		create = fmt.Sprintf("CREATE MATERIALIZED VIEW %s AS %s", ViewName, b.Definition())
	}

	if _, err := b.db.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("drop %s: %w", ViewName, err)
	}
	if _, err := b.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("recreate %s: %w", ViewName, err)
	}
	if err := b.createIndexes(ctx); err != nil {
		return err
	}

	b.log.Info().Msg("projection rebuilt")
	return nil
}

// RefreshConcurrently refreshes the projection without locking out readers.
// Requires the unique id index; without it the refresh fails with a
// structural error the coordinator recovers from.
func (b *Builder) RefreshConcurrently(ctx context.Context) error {
	if b.postgres() {
		_, err := b.db.ExecContext(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", ViewName))
		return err
	}
	return b.refreshEmulated(ctx)
}

// refreshEmulated is the SQLite stand-in for CONCURRENTLY: verify the
// preconditions the Postgres path enforces, then replace rows in one
// transaction.
func (b *Builder) refreshEmulated(ctx context.Context) error {
	exists, err := b.sqliteObjectExists(ctx, "table", ViewName)
	if err != nil {
		return err
	}
	if !exists {
		return ErrViewMissing
	}

	hasIndex, err := b.sqliteObjectExists(ctx, "index", uniqueIndexName)
	if err != nil {
		return err
	}
	if !hasIndex {
		return ErrUniqueIndexMissing
	}

	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", ViewName)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s %s", ViewName, b.Definition()))
		return err
	})
}

// Count reports the current projection row count.
func (b *Builder) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", ViewName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", ViewName, err)
	}
	return n, nil
}

func (b *Builder) createIndexes(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (id)", uniqueIndexName, ViewName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (box_id)", boxIndexName, ViewName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (parent_item_id)", parentIndexName, ViewName),
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index %s: %w", ViewName, err)
		}
	}
	return nil
}

func (b *Builder) postgres() bool {
	return b.db.Dialect().Name() == dialect.PG
}

func (b *Builder) sqliteObjectExists(ctx context.Context, kind, name string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
