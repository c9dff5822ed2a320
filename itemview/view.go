package itemview

import (
	"time"

	"github.com/uptrace/bun"
)

// ViewName is the relation backing the denormalized item projection.
const ViewName = "items_complete"

// ItemView is one row of the items_complete projection: an item joined with
// its extended properties, container, location, shelf and parent item, with
// soft-deleted items excluded. Rows are entirely derived; they are replaced
// wholesale by the refresh coordinator and never mutated directly.
type ItemView struct {
	bun.BaseModel `bun:"table:items_complete,alias:v"`

	ID          int64  `bun:"id" json:"id"`
	Name        string `bun:"name" json:"name"`
	Description string `bun:"description" json:"description"`
	Quantity    int    `bun:"quantity" json:"quantity"`

	BoxID     *int64  `bun:"box_id" json:"boxId,omitempty"`
	BoxNumber *string `bun:"box_number" json:"boxNumber,omitempty"`

	LocationID    *int64  `bun:"location_id" json:"locationId,omitempty"`
	LocationName  *string `bun:"location_name" json:"locationName,omitempty"`
	LocationColor *string `bun:"location_color" json:"locationColor,omitempty"`

	ShelfID   *int64  `bun:"shelf_id" json:"shelfId,omitempty"`
	ShelfName *string `bun:"shelf_name" json:"shelfName,omitempty"`

	ParentItemID   *int64  `bun:"parent_item_id" json:"parentItemId,omitempty"`
	ParentItemName *string `bun:"parent_item_name" json:"parentItemName,omitempty"`

	// Type, EAN and SerialNumber are coalesced from the item record and its
	// extended properties, preferring the item's own value.
	Type         *string `bun:"type" json:"type,omitempty"`
	EAN          *string `bun:"ean" json:"ean,omitempty"`
	SerialNumber *string `bun:"serial_number" json:"serialNumber,omitempty"`
	QRCode       *string `bun:"qr_code" json:"qrCode,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at" json:"updatedAt"`
}
