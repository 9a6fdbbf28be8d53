package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the history store.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// NoticeEntry records one attempted notification delivery.
// Keep it compact and schema-stable.
type NoticeEntry struct {
	At           time.Time
	Domain       string // "stock" or "weather"
	Kind         string // change event kind or "watchlist_match"
	Category     string
	Item         string
	SubscriberID string // empty for broadcast
	ChatID       int64
	OK           bool
	Error        string
	TookMS       int64
}
