package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/majo1520/IT-STOCK-sub001/invalidation"
	"github.com/majo1520/IT-STOCK-sub001/itemview"
)

// Refresher is the slice of the refresh coordinator the mutation path needs.
type Refresher interface {
	Refresh(ctx context.Context, mode itemview.Mode) itemview.Result
}

// Publisher emits the invalidation event set after a committed mutation.
type Publisher interface {
	PublishItemsChanged(action invalidation.Action, items []int64)
}

// Definer supplies the projection query so reads can fall back to the
// canonical tables when the cached view itself is unreadable.
type Definer interface {
	Definition() string
}

// ItemService is the mutation API for canonical items. Every successful
// mutation commits first, then triggers exactly one refresh attempt, then
// publishes the invalidation set, and finally composes its response from the
// refreshed projection. Refresh and broadcast outcomes never determine the
// mutation's user-visible success.
type ItemService struct {
	db        *bun.DB
	refresher Refresher
	events    Publisher
	definer   Definer
	log       zerolog.Logger
}

// NewItemService wires the mutation API. events may be nil when no push
// channel is attached (tests, offline tools).
func NewItemService(db *bun.DB, refresher Refresher, events Publisher, definer Definer, logger zerolog.Logger) *ItemService {
	return &ItemService{
		db:        db,
		refresher: refresher,
		events:    events,
		definer:   definer,
		log:       logger.With().Str("component", "store").Logger(),
	}
}

// Create inserts an item and its optional extended properties, then refreshes
// the projection and returns the item's cached view row.
func (s *ItemService) Create(ctx context.Context, item *Item, props *ItemProperty) (*itemview.ItemView, error) {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(item).Exec(ctx); err != nil {
			return err
		}
		if props != nil {
			props.ItemID = item.ID
			if _, err := tx.NewInsert().Model(props).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.afterMutation(ctx, invalidation.ActionCreate, []int64{item.ID})
	return s.ItemByID(ctx, item.ID)
}

// Update persists the item's mutable fields, then refreshes and returns the
// updated view row. created_at is immutable; qr_code is owned by the code
// reconciliation path and is only written when explicitly provided.
func (s *ItemService) Update(ctx context.Context, item *Item) (*itemview.ItemView, error) {
	item.UpdatedAt = time.Now()

	q := s.db.NewUpdate().Model(item).
		Column("name", "description", "quantity", "box_id", "parent_item_id",
			"type", "ean", "serial_number", "updated_at").
		WherePK()
	if item.QRCode != nil {
		q = q.Column("qr_code")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("update item %d: no such item", item.ID)
	}

	s.afterMutation(ctx, invalidation.ActionUpdate, []int64{item.ID})
	return s.ItemByID(ctx, item.ID)
}

// SoftDelete marks the item deleted. The canonical row survives with its
// deletion timestamp set; the projection drops it on the next refresh.
func (s *ItemService) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*Item)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete item %d: no such item", id)
	}

	s.afterMutation(ctx, invalidation.ActionDelete, []int64{id})
	return nil
}

// Restore clears the deletion marker of a soft-deleted item.
func (s *ItemService) Restore(ctx context.Context, id int64) (*itemview.ItemView, error) {
	res, err := s.db.NewUpdate().Model((*Item)(nil)).
		Set("deleted_at = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		WhereAllWithDeleted().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("restore item %d: no such item", id)
	}

	s.afterMutation(ctx, invalidation.ActionRestore, []int64{id})
	return s.ItemByID(ctx, id)
}

// BulkDelete soft-deletes a batch of items in one statement.
func (s *ItemService) BulkDelete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.db.NewDelete().Model((*Item)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx); err != nil {
		return fmt.Errorf("bulk delete: %w", err)
	}

	s.afterMutation(ctx, invalidation.ActionBulkDelete, ids)
	return nil
}

// ItemByID reads one row from the cached projection, falling back to the
// canonical tables when the projection read fails.
func (s *ItemService) ItemByID(ctx context.Context, id int64) (*itemview.ItemView, error) {
	view := new(itemview.ItemView)
	err := s.db.NewSelect().Model(view).Where("v.id = ?", id).Scan(ctx)
	if err == nil {
		return view, nil
	}

	s.log.Warn().Err(err).Int64("item", id).Msg("view read failed, falling back to canonical store")
	view = new(itemview.ItemView)
	err = s.db.NewRaw(
		fmt.Sprintf("SELECT * FROM (%s) AS v WHERE v.id = ?", s.definer.Definition()), id,
	).Scan(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("read item %d: %w", id, err)
	}
	return view, nil
}

// ListItems reads the full projection, with the same canonical fallback.
func (s *ItemService) ListItems(ctx context.Context) ([]itemview.ItemView, error) {
	var views []itemview.ItemView
	err := s.db.NewSelect().Model(&views).Order("id").Scan(ctx)
	if err == nil {
		return views, nil
	}

	s.log.Warn().Err(err).Msg("view read failed, falling back to canonical store")
	views = nil
	err = s.db.NewRaw(
		fmt.Sprintf("SELECT * FROM (%s) AS v ORDER BY v.id", s.definer.Definition()),
	).Scan(ctx, &views)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return views, nil
}

// ItemCode returns the canonical auxiliary code of an item (deleted items
// included, codes outlive soft deletion).
func (s *ItemService) ItemCode(ctx context.Context, id int64) (string, error) {
	var code *string
	err := s.db.NewSelect().Model((*Item)(nil)).
		Column("qr_code").
		Where("id = ?", id).
		WhereAllWithDeleted().
		Scan(ctx, &code)
	if err != nil {
		return "", fmt.Errorf("item code %d: %w", id, err)
	}
	if code == nil {
		return "", nil
	}
	return *code, nil
}

// SetItemCode stores an auxiliary code on the canonical record. Used by the
// client reconciler's local-wins push.
func (s *ItemService) SetItemCode(ctx context.Context, id int64, code string) error {
	res, err := s.db.NewUpdate().Model((*Item)(nil)).
		Set("qr_code = ?", code).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		WhereAllWithDeleted().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set item code %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set item code %d: no such item", id)
	}
	return nil
}

// afterMutation runs the committed-mutation tail: exactly one refresh
// attempt, then on success the redundant invalidation set. A refresh failure
// is logged and reported through the admin surface only; the mutation stays
// committed and successful, staleness is the accepted degradation. Nothing is
// broadcast then: clients re-reading a stale projection would learn nothing,
// the next successful refresh notifies them.
func (s *ItemService) afterMutation(ctx context.Context, action invalidation.Action, ids []int64) {
	res := s.refresher.Refresh(ctx, itemview.ModeAfterWrite)
	if res.Err != nil {
		s.log.Error().Err(res.Err).Str("action", string(action)).
			Msg("cache refresh failed after mutation, serving stale data")
		return
	}
	if s.events != nil {
		s.events.PublishItemsChanged(action, ids)
	}
}
