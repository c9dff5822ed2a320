package invalidation

import "time"

// Action names the mutation that triggered an item-update notification.
// The wire values match what existing clients already parse, so bulk delete
// stays camelCase.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionRestore    Action = "restore"
	ActionBulkDelete Action = "bulkDelete"
)

// Event is the transient change notification handed to the push channel.
// Events are never persisted; a missed event is backstopped by the client
// reconciler's timer-driven pass.
type Event struct {
	Category  Category
	Timestamp time.Time
	// Action and Items are populated only for CategoryItemUpdate.
	Action Action
	Items  []int64
}
