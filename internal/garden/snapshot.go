// Package garden holds the domain model for one polled observation of the
// garden API (a snapshot of categorized entries) and the pure functions
// that compare snapshots and scan them against user watchlists.
package garden

import "time"

// Snapshot is one polled observation, partitioned into categories.
// Category order is preserved from the source and is significant for
// deterministic event emission.
type Snapshot struct {
	Categories []Category `json:"categories"`
}

// Category groups entries under a source-defined name ("seeds", "gear", ...).
// Timed categories carry activity windows (weather events); their entries are
// identified by ID rather than name, since names repeat across instances.
type Category struct {
	Name    string  `json:"name"`
	Timed   bool    `json:"timed,omitempty"`
	Entries []Entry `json:"entries"`
}

// Entry is one named item or event state within a category.
type Entry struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Emoji    string `json:"emoji,omitempty"`

	// Activity fields, only meaningful in timed categories.
	ID          string    `json:"id,omitempty"`
	Active      bool      `json:"active,omitempty"`
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
}

// Category looks up a category by name. Returns nil if absent.
func (s *Snapshot) Category(name string) *Category {
	if s == nil {
		return nil
	}
	for i := range s.Categories {
		if s.Categories[i].Name == name {
			return &s.Categories[i]
		}
	}
	return nil
}

// EntryCount returns the total number of entries across all categories.
func (s *Snapshot) EntryCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Categories {
		n += len(s.Categories[i].Entries)
	}
	return n
}

// EventKind tags the change events produced by Diff.
type EventKind string

const (
	EventAppeared        EventKind = "appeared"
	EventQuantityChanged EventKind = "quantity_changed"
	EventActivityStarted EventKind = "activity_started"
	EventActivityEnded   EventKind = "activity_ended"
)

// ChangeEvent is one observed difference between two snapshots.
type ChangeEvent struct {
	Kind     EventKind
	Category string
	Entry    Entry

	// Quantity transition, set for EventQuantityChanged only.
	PreviousQuantity int
	CurrentQuantity  int
	Delta            int
}

// MatchEvent reports that a subscriber's watchlist matched an in-stock entry.
type MatchEvent struct {
	SubscriberID string
	Category     string
	Entry        Entry
}
