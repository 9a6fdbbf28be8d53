package notifier

import (
	"time"

	"gardenbot/internal/transport"
)

// Config controls the async delivery pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// DedupWindow suppresses notifications that carry the same DedupKey
	// within the window. Zero disables suppression entirely.
	DedupWindow time.Duration
}

// Notification is one outbound message plus enough metadata for the notice
// log and dedup.
type Notification struct {
	Domain       string // "stock" or "weather"
	Kind         string // change event kind or "watchlist_match"
	Category     string
	Item         string
	SubscriberID string // empty for broadcast

	Target transport.ChatTarget
	Text   string

	// DedupKey, when non-empty, suppresses repeats within the configured
	// window (watchlist alerts use it; change announcements don't, the
	// diff engine already reports only changes).
	DedupKey string
}

// DeliveryEvent is the bus payload for notice.* events.
type DeliveryEvent struct {
	Domain       string
	Kind         string
	Item         string
	SubscriberID string
	ChatID       int64
	At           time.Time
	Error        string
}
