package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/majo1520/IT-STOCK-sub001/store"
)

// SeedCatalog inserts one location, shelf and box and returns the box id.
// Items seeded into this box get full join coverage in the projection.
func SeedCatalog(t *testing.T, db *bun.DB) int64 {
	t.Helper()
	ctx := context.Background()

	loc := &store.Location{Name: "Server Room", Color: "#ff0000"}
	if _, err := db.NewInsert().Model(loc).Exec(ctx); err != nil {
		t.Fatalf("seed location: %v", err)
	}
	shelf := &store.Shelf{Name: "A1"}
	if _, err := db.NewInsert().Model(shelf).Exec(ctx); err != nil {
		t.Fatalf("seed shelf: %v", err)
	}
	box := &store.Box{BoxNumber: "BOX-001", LocationID: &loc.ID, ShelfID: &shelf.ID}
	if _, err := db.NewInsert().Model(box).Exec(ctx); err != nil {
		t.Fatalf("seed box: %v", err)
	}
	return box.ID
}

// SeedItem inserts a canonical item directly, bypassing the mutation API.
// Useful when a test needs rows without triggering refreshes.
func SeedItem(t *testing.T, db *bun.DB, name string, quantity int, boxID *int64) *store.Item {
	t.Helper()

	now := time.Now()
	item := &store.Item{
		Name:      name,
		Quantity:  quantity,
		BoxID:     boxID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := db.NewInsert().Model(item).Exec(context.Background()); err != nil {
		t.Fatalf("seed item %q: %v", name, err)
	}
	return item
}
