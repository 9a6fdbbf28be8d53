// Package monitor owns the poll cadences and drives one cycle per domain:
// fetch, diff against the last committed snapshot, watchlist match, hand
// events to the notifier, commit the new snapshot.
//
// A single mutex serializes store and in-memory state access; cycles for
// different domains (and the periodic flush) may overlap in wall-clock
// time but never mutate concurrently.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gardenbot/internal/eventbus"
	"gardenbot/internal/registry"
	"gardenbot/internal/store"
	"gardenbot/pkg/logx"
)

type Service struct {
	log logx.Logger
	cfg Config

	st    *store.Store
	reg   *registry.Registry
	fetch Fetcher
	notif Notifier
	bus   eventbus.Bus // may be nil

	c *cron.Cron

	mu    sync.Mutex
	state store.MonitorState // mirrors the last successfully committed value
}

func New(cfg Config, st *store.Store, reg *registry.Registry, fetch Fetcher, notif Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		cfg:   cfg.withDefaults(),
		st:    st,
		reg:   reg,
		fetch: fetch,
		notif: notif,
		bus:   bus,
	}
}

// Start loads the persisted monitoring state and begins the schedules.
// A corrupt monitoring document degrades to an empty previous state (first
// cycle then emits no diff events) instead of failing startup.
func (s *Service) Start(ctx context.Context) error {
	state, err := s.st.LoadMonitoring()
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return err
		}
		s.log.Warn("monitoring document corrupt; starting from empty state", logx.Err(err))
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	loc := time.Local
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return err
		}
		loc = l
	}

	// Skip a tick when the previous run of the same job is still going;
	// the mutex would only queue them up.
	s.c = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	// Cycles run on their own bounded contexts, not the app context:
	// shutdown stops the timers but lets an in-flight cycle finish or
	// time out naturally instead of aborting it mid-commit.
	add := func(spec, name string, job func(context.Context)) error {
		_, err := s.c.AddFunc(spec, func() {
			cctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
			defer cancel()
			job(cctx)
		})
		if err != nil {
			return err
		}
		s.log.Debug("schedule registered", logx.String("job", name), logx.String("spec", spec))
		return nil
	}

	if err := add(s.cfg.StockSchedule, "stock", func(c context.Context) { s.RunStockCycle(c) }); err != nil {
		return err
	}
	if err := add(s.cfg.WeatherSchedule, "weather", func(c context.Context) { s.RunWeatherCycle(c) }); err != nil {
		return err
	}
	if err := add(s.cfg.FlushSchedule, "flush", func(c context.Context) { s.Flush() }); err != nil {
		return err
	}

	s.c.Start()
	s.log.Info("monitoring started",
		logx.String("stock", s.cfg.StockSchedule),
		logx.String("weather", s.cfg.WeatherSchedule),
		logx.String("flush", s.cfg.FlushSchedule))
	return nil
}

// Stop runs the guaranteed shutdown sequence: cancel timers, wait for any
// in-flight cycle, final flush, backup pruning.
func (s *Service) Stop(ctx context.Context) {
	if s.c != nil {
		stopCtx := s.c.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	s.Flush()
	if removed, err := s.st.PruneBackups(s.cfg.BackupKeep); err != nil {
		s.log.Warn("backup pruning failed", logx.Err(err))
	} else if removed > 0 {
		s.log.Info("backups pruned on shutdown", logx.Int("removed", removed))
	}
	s.log.Info("monitoring stopped")
}

// Flush persists both documents. Used by the slow timer, by /save, and by
// shutdown; bounds data loss on ungraceful termination.
func (s *Service) Flush() {
	if err := s.reg.Save(); err != nil {
		s.log.Error("watchlist flush failed", logx.Err(err))
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if err := s.st.SaveMonitoring(state); err != nil {
		s.log.Error("monitoring flush failed", logx.Err(err))
	}
}

// LastState returns the last committed monitoring state (for /stats).
func (s *Service) LastState() store.MonitorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
