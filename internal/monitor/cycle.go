package monitor

import (
	"context"
	"strconv"
	"time"

	"gardenbot/internal/eventbus"
	"gardenbot/internal/garden"
	"gardenbot/internal/notifier"
	"gardenbot/internal/store"
	"gardenbot/internal/transport"
	"gardenbot/pkg/logx"
)

// RunStockCycle executes one stock poll cycle. A fetch failure abandons
// the cycle with no state change; everything after a successful fetch is
// serialized behind the service mutex.
func (s *Service) RunStockCycle(ctx context.Context) {
	s.runCycle(ctx, "stock", s.fetch.FetchStock,
		func(st *store.MonitorState) **garden.Snapshot { return &st.Stock })
}

// RunWeatherCycle executes one weather poll cycle.
func (s *Service) RunWeatherCycle(ctx context.Context) {
	s.runCycle(ctx, "weather", s.fetch.FetchWeather,
		func(st *store.MonitorState) **garden.Snapshot { return &st.Weather })
}

func (s *Service) runCycle(
	ctx context.Context,
	domain string,
	fetch func(context.Context) (*garden.Snapshot, error),
	slot func(*store.MonitorState) **garden.Snapshot,
) {
	start := time.Now()

	// Fetch fully into memory before touching any shared state.
	current, err := fetch(ctx)
	if err != nil {
		s.log.Warn("fetch failed; cycle abandoned", logx.String("domain", domain), logx.Err(err))
		s.publishCycle(eventbus.TypeCycleFailed, CycleEvent{Domain: domain, Duration: time.Since(start), Error: err.Error()})
		return
	}

	s.mu.Lock()
	previous := *slot(&s.state)

	changes := garden.Diff(previous, current)
	matches := garden.Match(current, s.reg.View())

	notices := s.buildNotices(domain, changes, matches)

	// Commit before releasing the lock so the next cycle diffs against
	// exactly what was persisted. On save failure the in-memory mirror
	// keeps the old value: previous state stays intact, diff re-reports
	// next cycle.
	*slot(&s.state) = current
	if err := s.st.SaveMonitoring(s.state); err != nil {
		*slot(&s.state) = previous
		s.mu.Unlock()
		s.log.Error("snapshot commit failed; keeping previous state", logx.String("domain", domain), logx.Err(err))
		s.publishCycle(eventbus.TypeCycleFailed, CycleEvent{Domain: domain, Changes: len(changes), Matches: len(matches), Duration: time.Since(start), Error: err.Error()})
		return
	}
	s.mu.Unlock()

	// Hand the batch to the notifier. Enqueueing completes the cycle;
	// delivery is async and individually retried.
	for _, n := range notices {
		if err := s.notif.Notify(ctx, n); err != nil {
			s.log.Warn("notification enqueue failed", logx.String("kind", n.Kind), logx.String("item", n.Item), logx.Err(err))
		}
	}

	dur := time.Since(start)
	if len(changes) > 0 || len(matches) > 0 {
		s.log.Info("cycle completed",
			logx.String("domain", domain), logx.Int("changes", len(changes)),
			logx.Int("matches", len(matches)), logx.Duration("dur", dur))
	} else {
		s.log.Debug("cycle completed; no changes", logx.String("domain", domain), logx.Duration("dur", dur))
	}
	s.publishCycle(eventbus.TypeCycleCompleted, CycleEvent{Domain: domain, Changes: len(changes), Matches: len(matches), Duration: dur})
}

// buildNotices renders change events and watchlist matches into concrete
// notifications, applying the announcement policy.
func (s *Service) buildNotices(domain string, changes []garden.ChangeEvent, matches []garden.MatchEvent) []notifier.Notification {
	var out []notifier.Notification

	for _, ev := range changes {
		if !s.announceChange(domain, ev) {
			continue
		}
		text := formatChange(ev)
		for _, chat := range s.cfg.BroadcastChats {
			out = append(out, notifier.Notification{
				Domain:   domain,
				Kind:     string(ev.Kind),
				Category: ev.Category,
				Item:     ev.Entry.Name,
				Target:   transport.ChatTarget{ChatID: chat},
				Text:     text,
			})
		}
	}

	for _, m := range matches {
		chatID, err := strconv.ParseInt(m.SubscriberID, 10, 64)
		if err != nil {
			s.log.Warn("subscriber id is not a chat id; skipping alert", logx.String("subscriber", m.SubscriberID))
			continue
		}
		out = append(out, notifier.Notification{
			Domain:       domain,
			Kind:         "watchlist_match",
			Category:     m.Category,
			Item:         m.Entry.Name,
			SubscriberID: m.SubscriberID,
			Target:       transport.ChatTarget{ChatID: chatID},
			Text:         formatMatch(m),
			DedupKey:     matchDedupKey(m),
		})
	}
	return out
}

func (s *Service) announceChange(domain string, ev garden.ChangeEvent) bool {
	p := s.cfg.Policy
	switch ev.Kind {
	case garden.EventActivityStarted, garden.EventActivityEnded:
		return p.WeatherEvents
	case garden.EventAppeared:
		return p.StockChanges && ev.Entry.Quantity >= p.MinQuantity
	case garden.EventQuantityChanged:
		if !p.StockChanges {
			return false
		}
		if p.IncreaseOnly && ev.Delta < 0 {
			return false
		}
		return true
	default:
		return false
	}
}

func matchDedupKey(m garden.MatchEvent) string {
	return "watch|" + m.SubscriberID + "|" + m.Category + "|" + m.Entry.Name
}

func (s *Service) publishCycle(eventType string, ev CycleEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: ev})
}
