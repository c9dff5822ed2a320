package invalidation

import "fmt"

// Category identifies one kind of invalidation notification. The wire keeps
// several near-duplicate kinds for compatibility with heterogeneous client
// listeners; internally they are values of a single enum.
type Category int

const (
	// CategoryRefreshNeeded tells clients their cached item data may be stale.
	CategoryRefreshNeeded Category = iota
	// CategoryClientRefreshRequest asks clients to re-fetch item data directly.
	CategoryClientRefreshRequest
	// CategoryItemUpdate carries the mutating action and the affected item ids.
	CategoryItemUpdate
)

var categoryNames = map[Category]string{
	CategoryRefreshNeeded:        "RefreshNeeded",
	CategoryClientRefreshRequest: "ClientRefreshRequest",
	CategoryItemUpdate:           "ItemUpdate",
}

// Categories lists every known category, in broadcast order.
func Categories() []Category {
	return []Category{CategoryRefreshNeeded, CategoryClientRefreshRequest, CategoryItemUpdate}
}

// String returns the Go-facing name of the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// WireName returns the snake_case message type used on the push channel,
// e.g. "refresh_needed".
func (c Category) WireName() string {
	return toSnake(c.String())
}

// ParseCategory resolves a wire name back to its Category. Used when clients
// declare subscribed categories.
func ParseCategory(wire string) (Category, bool) {
	for _, c := range Categories() {
		if c.WireName() == wire {
			return c, true
		}
	}
	return 0, false
}
