package audit

import (
	"time"

	"github.com/miq-labs/miq-be/internal/shared"
)

// Entry is a persisted audit log row.
type Entry struct {
	ID       int64          `json:"id"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Filters narrows an audit listing. Zero values mean "no filter".
type Filters struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
}

// Result bundles a page of entries with paging metadata.
type Result struct {
	Entries []Entry
	Meta    shared.Pagination
}
