package monitor

import (
	"context"
	"time"

	"gardenbot/internal/garden"
	"gardenbot/internal/notifier"
)

// Fetcher is the external fetch capability, one method per monitored
// domain. Implementations must fully materialize the snapshot before
// returning; the coordinator never holds the store open across a fetch.
type Fetcher interface {
	FetchStock(ctx context.Context) (*garden.Snapshot, error)
	FetchWeather(ctx context.Context) (*garden.Snapshot, error)
}

// Notifier accepts one event for async delivery. Enqueue errors are
// non-fatal to a cycle.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Policy controls which change events become announcements.
type Policy struct {
	StockChanges  bool
	WeatherEvents bool
	MinQuantity   int  // smallest quantity announced as "in stock"
	IncreaseOnly  bool // suppress quantity-decrease announcements
}

// Config controls cadence and announcement routing. Schedules are cron
// specs; defaults are stock every 2 minutes, weather every minute,
// flush every 5.
type Config struct {
	StockSchedule   string
	WeatherSchedule string
	FlushSchedule   string
	Timezone        string

	CycleTimeout time.Duration // per-cycle bound; default 45s

	BroadcastChats []int64
	BackupKeep     int

	Policy Policy
}

func (c Config) withDefaults() Config {
	if c.StockSchedule == "" {
		c.StockSchedule = "*/2 * * * *"
	}
	if c.WeatherSchedule == "" {
		c.WeatherSchedule = "*/1 * * * *"
	}
	if c.FlushSchedule == "" {
		c.FlushSchedule = "*/5 * * * *"
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 45 * time.Second
	}
	if c.BackupKeep <= 0 {
		c.BackupKeep = 10
	}
	return c
}

// CycleEvent is the bus payload for cycle.* events.
type CycleEvent struct {
	Domain   string
	Changes  int
	Matches  int
	Duration time.Duration
	Error    string
}
