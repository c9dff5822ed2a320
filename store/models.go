package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Item is the canonical, source-of-truth item record. Rows are mutated only
// through ItemService; deletion is soft, so deleted rows stay in this table
// while disappearing from the projection on the next refresh.
type Item struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description" json:"description"`
	Quantity    int    `bun:"quantity" json:"quantity"`

	BoxID        *int64 `bun:"box_id" json:"boxId,omitempty"`
	ParentItemID *int64 `bun:"parent_item_id" json:"parentItemId,omitempty"`

	Type         *string `bun:"type" json:"type,omitempty"`
	EAN          *string `bun:"ean" json:"ean,omitempty"`
	SerialNumber *string `bun:"serial_number" json:"serialNumber,omitempty"`
	QRCode       *string `bun:"qr_code" json:"qrCode,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deletedAt,omitempty"`
}

// ItemProperty holds extended attributes keyed by item id. Some fields
// overlap in meaning with Item fields; both are authoritative and the
// projection coalesces them, preferring the item's own value.
type ItemProperty struct {
	bun.BaseModel `bun:"table:item_properties,alias:p"`

	ItemID       int64   `bun:"item_id,pk" json:"itemId"`
	Type         *string `bun:"type" json:"type,omitempty"`
	EAN          *string `bun:"ean" json:"ean,omitempty"`
	SerialNumber *string `bun:"serial_number" json:"serialNumber,omitempty"`
}

// Box is the container an item lives in.
type Box struct {
	bun.BaseModel `bun:"table:boxes,alias:b"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	BoxNumber  string `bun:"box_number,notnull" json:"boxNumber"`
	LocationID *int64 `bun:"location_id" json:"locationId,omitempty"`
	ShelfID    *int64 `bun:"shelf_id" json:"shelfId,omitempty"`
}

// Location is a physical place boxes are stored at.
type Location struct {
	bun.BaseModel `bun:"table:locations,alias:l"`

	ID    int64  `bun:"id,pk,autoincrement" json:"id"`
	Name  string `bun:"name,notnull" json:"name"`
	Color string `bun:"color" json:"color"`
}

// Shelf is a shelf within a location.
type Shelf struct {
	bun.BaseModel `bun:"table:shelves,alias:s"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
}
