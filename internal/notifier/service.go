// Package notifier implements the async notification pipeline: bounded
// queue, worker pool, rate limit, per-send retry, and notify-once dedup.
//
// Enqueueing is what a poll cycle waits for; delivery itself is
// asynchronous so one slow recipient can never stall the scheduler.
package notifier

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gardenbot/internal/eventbus"
	"gardenbot/internal/history"
	"gardenbot/internal/transport"
	"gardenbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter
	hist    history.Store // may be nil
	bus     eventbus.Bus  // may be nil

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	enqueueWG sync.WaitGroup

	queue    chan Notification
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// In-memory dedup cache: key -> suppress until. Backed by the history
	// store (when configured) so suppression survives restarts.
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, adapter transport.Adapter, hist history.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		hist:    hist,
		log:     log,
		bus:     bus,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notifier worker", logx.Int("worker", i), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop()
		}()
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues, then close the queue so workers drain.
	ch := make(chan struct{})
	go func() {
		s.enqueueWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-ch:
	}
	close(q)

	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
}

// Notify enqueues one notification. It returns quickly; delivery happens on
// the worker pool. Suppressed duplicates return nil.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	if n.DedupKey != "" && window > 0 {
		if !s.dedupAllow(ctx, n.DedupKey, window) {
			s.publish(eventbus.TypeNoticeDeduped, n, "")
			return nil
		}
	}

	select {
	case q <- n:
		return nil
	default:
		s.publish(eventbus.TypeNoticeDropped, n, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

func (s *Service) workerLoop() {
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for n := range q {
		if runCtx != nil {
			select {
			case <-runCtx.Done():
				return
			default:
			}
		}
		s.sendWithRetry(runCtx, n)
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, n Notification) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil || n.Text == "" {
		return
	}
	if runCtx == nil {
		runCtx = context.Background()
	}

	start := time.Now()
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(runCtx); err != nil {
				return
			}
		}

		// Bound each send so a stalled API call can't hang a worker.
		callCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		err := ad.SendText(callCtx, n.Target, n.Text, &transport.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			s.record(n, true, "", time.Since(start))
			s.publish(eventbus.TypeNoticeSent, n, "")
			return
		}
		lastErr = err
		s.log.Debug("notice send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	s.record(n, false, lastErr.Error(), time.Since(start))
	s.publish(eventbus.TypeNoticeFailed, n, lastErr.Error())
	s.log.Warn("notice delivery failed",
		logx.String("kind", n.Kind), logx.String("item", n.Item),
		logx.Int64("chat_id", n.Target.ChatID), logx.Err(lastErr))
}

// dedupAllow reports whether a keyed notification may go out, consulting
// the in-memory window first and the persisted state on a miss.
func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()

	until, ok := s.dedup[key]
	if !ok && s.hist != nil {
		if pu, found, err := s.hist.GetDedup(ctx, key); err == nil && found {
			until, ok = pu, true
		}
	}
	if ok && now.Before(until) {
		return false
	}

	next := now.Add(window)
	s.dedup[key] = next
	if s.hist != nil {
		if err := s.hist.PutDedup(ctx, key, next); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
	}

	// Prune expired in-memory entries opportunistically.
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	return true
}

func (s *Service) record(n Notification, ok bool, errText string, took time.Duration) {
	if s.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.hist.AppendNotice(ctx, history.NoticeEntry{
		At:           time.Now(),
		Domain:       n.Domain,
		Kind:         n.Kind,
		Category:     n.Category,
		Item:         n.Item,
		SubscriberID: n.SubscriberID,
		ChatID:       n.Target.ChatID,
		OK:           ok,
		Error:        errText,
		TookMS:       took.Milliseconds(),
	})
	if err != nil {
		s.log.Debug("notice log append failed", logx.Err(err))
	}
}

func (s *Service) publish(eventType string, n Notification, errText string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: eventType, Time: now, Data: DeliveryEvent{
		Domain:       n.Domain,
		Kind:         n.Kind,
		Item:         n.Item,
		SubscriberID: n.SubscriberID,
		ChatID:       n.Target.ChatID,
		At:           now,
		Error:        errText,
	}})
}

// retryDelay grows exponentially from the base with jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
