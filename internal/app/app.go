// Package app assembles the bot: configuration, logging, persistence,
// polling, notification delivery, and the chat command surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gardenbot/internal/config"
	"gardenbot/internal/eventbus"
	"gardenbot/internal/fetch"
	"gardenbot/internal/history"
	"gardenbot/internal/monitor"
	"gardenbot/internal/notifier"
	"gardenbot/internal/registry"
	"gardenbot/internal/store"
	"gardenbot/internal/transport"
	"gardenbot/internal/transport/telegram"
	"gardenbot/pkg/logx"
)

const defaultDataDir = "./data"

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st      *store.Store
	reg     *registry.Registry
	hist    history.Store // may be nil
	api     *fetch.Client
	bus     eventbus.Bus
	notif   *notifier.Service
	mon     *monitor.Service
	adapter transport.Adapter

	updates chan transport.Message

	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Runtime counters fed from the event bus, reported by /stats.
	cmu      sync.Mutex
	counters counters
}

type counters struct {
	CyclesCompleted int64
	CyclesFailed    int64
	NoticesSent     int64
	NoticesFailed   int64
	NoticesDeduped  int64
	NoticesDropped  int64
}

// New loads the configuration and builds every component. Nothing is
// started yet; a config error here is fatal by design.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	dataDir := strings.TrimSpace(cfg.Data.Dir)
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	st, err := store.New(dataDir, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	reg, err := registry.Load(st, log.With(logx.String("comp", "registry")))
	if err != nil && !errors.Is(err, store.ErrCorrupt) {
		_ = logs.Close()
		return nil, err
	}

	histCfg, err := historyConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	hist, err := history.Open(histCfg, log.With(logx.String("comp", "history")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	apiCfg, err := apiConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	api := fetch.New(apiCfg, log.With(logx.String("comp", "fetch")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	bus := eventbus.New()

	notifCfg, err := notifierConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	notif := notifier.New(notifCfg, adapter, hist, log.With(logx.String("comp", "notifier")), bus)

	monCfg, err := monitorConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	mon := monitor.New(monCfg, st, reg, api, notif, log.With(logx.String("comp", "monitor")), bus)

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		st:      st,
		reg:     reg,
		hist:    hist,
		api:     api,
		bus:     bus,
		notif:   notif,
		mon:     mon,
		adapter: adapter,
	}, nil
}

// Start brings everything up: delivery pipeline first so early cycle
// output has somewhere to go, then the schedules, then the command loop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()
	a.updates = make(chan transport.Message, 64)

	// The notifier gets its own lifetime: cancelling the run context on
	// shutdown must not abort the queue drain in notif.Stop.
	a.notif.Start(context.Background())

	if err := a.mon.Start(runCtx); err != nil {
		cancel()
		return err
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatchLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.counterLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("bot started")
	return nil
}

// Stop runs the ordered shutdown: stop intake, stop the schedules (which
// flushes state and prunes backups), drain pending notifications, then
// close the history store and log sinks.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	_ = a.adapter.Stop(ctx)
	a.mon.Stop(ctx)
	a.notif.Stop(ctx)

	a.wg.Wait()

	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.log.Warn("history close failed", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	_ = a.logs.Close()
}

func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.updates:
			if !ok {
				return
			}
			// Commands may fetch upstream; handle off the loop so one slow
			// command doesn't back up the poller.
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleMessage(ctx, msg)
			}()
		}
	}
}

func (a *App) counterLoop(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.cmu.Lock()
			switch ev.Type {
			case eventbus.TypeCycleCompleted:
				a.counters.CyclesCompleted++
			case eventbus.TypeCycleFailed:
				a.counters.CyclesFailed++
			case eventbus.TypeNoticeSent:
				a.counters.NoticesSent++
			case eventbus.TypeNoticeFailed:
				a.counters.NoticesFailed++
			case eventbus.TypeNoticeDeduped:
				a.counters.NoticesDeduped++
			case eventbus.TypeNoticeDropped:
				a.counters.NoticesDropped++
			}
			a.cmu.Unlock()
		}
	}
}

// reloadLoop applies the runtime-tunable parts of a config change: log
// level/sinks and notifier behavior. Schedule, transport, and storage
// changes need a restart and are logged as such.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(loggingConfig(cfg))
			if ncfg, err := notifierConfig(cfg); err != nil {
				a.log.Warn("reloaded notifier config rejected", logx.Err(err))
			} else {
				a.notif.Apply(ncfg)
			}
			a.log.Info("runtime config applied; schedule, transport and storage changes require a restart")
		}
	}
}

func (a *App) snapshotCounters() counters {
	a.cmu.Lock()
	defer a.cmu.Unlock()
	return a.counters
}

// validateConfig is used both at startup and as the hot-reload gate.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := apiConfig(cfg); err != nil {
		return err
	}
	if _, err := notifierConfig(cfg); err != nil {
		return err
	}
	if _, err := historyConfig(cfg); err != nil {
		return err
	}
	mc, err := monitorConfig(cfg)
	if err != nil {
		return err
	}
	for _, spec := range []struct{ name, value string }{
		{"monitor.stock_schedule", mc.StockSchedule},
		{"monitor.weather_schedule", mc.WeatherSchedule},
		{"monitor.flush_schedule", mc.FlushSchedule},
	} {
		if spec.value == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec.value); err != nil {
			return fmt.Errorf("%s: %w", spec.name, err)
		}
	}
	if mc.Timezone != "" {
		if _, err := time.LoadLocation(mc.Timezone); err != nil {
			return fmt.Errorf("monitor.timezone: %w", err)
		}
	}
	return nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func apiConfig(cfg *config.Config) (fetch.Config, error) {
	timeout, err := config.ParseDurationField("api.timeout", cfg.API.Timeout)
	if err != nil {
		return fetch.Config{}, err
	}
	delay, err := config.ParseDurationField("api.retry_delay", cfg.API.RetryDelay)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    timeout,
		RetryMax:   cfg.API.RetryMax,
		RetryDelay: delay,
	}, nil
}

func notifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifications

	retryBase, err := config.ParseDurationField("notifications.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifications.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}

	// An omitted window defaults to 30m; an explicit "0s" turns dedup off
	// and restores re-notification on every matching cycle.
	dedup := 30 * time.Minute
	if strings.TrimSpace(n.DedupWindow) != "" {
		dedup, err = config.ParseDurationField("notifications.dedup_window", n.DedupWindow)
		if err != nil {
			return notifier.Config{}, err
		}
	}

	return notifier.Config{
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		DedupWindow:   dedup,
	}, nil
}

func monitorConfig(cfg *config.Config) (monitor.Config, error) {
	return monitor.Config{
		StockSchedule:   cfg.Monitor.StockSchedule,
		WeatherSchedule: cfg.Monitor.WeatherSchedule,
		FlushSchedule:   cfg.Monitor.FlushSchedule,
		Timezone:        cfg.Monitor.Timezone,
		BroadcastChats:  cfg.Telegram.BroadcastChatIDs,
		BackupKeep:      cfg.Data.BackupKeep,
		Policy: monitor.Policy{
			StockChanges:  cfg.Notifications.StockChangesEnabled(),
			WeatherEvents: cfg.Notifications.WeatherEventsEnabled(),
			MinQuantity:   cfg.Notifications.MinQuantity,
			IncreaseOnly:  cfg.Notifications.IncreaseOnly,
		},
	}, nil
}

func historyConfig(cfg *config.Config) (history.Config, error) {
	if cfg.History == nil {
		return history.Config{}, nil
	}
	busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
	}, nil
}
