package monitor

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"gardenbot/internal/garden"
	"gardenbot/internal/notifier"
	"gardenbot/internal/registry"
	"gardenbot/internal/store"
	"gardenbot/pkg/logx"
)

type fakeFetcher struct {
	stock   *garden.Snapshot
	weather *garden.Snapshot
	err     error
}

func (f *fakeFetcher) FetchStock(context.Context) (*garden.Snapshot, error) {
	return f.stock, f.err
}

func (f *fakeFetcher) FetchWeather(context.Context) (*garden.Snapshot, error) {
	return f.weather, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notifier.Notification
	errIn error
}

func (f *fakeNotifier) Notify(_ context.Context, n notifier.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errIn != nil {
		return f.errIn
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) notices() []notifier.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.Notification(nil), f.sent...)
}

func stock(entries ...garden.Entry) *garden.Snapshot {
	return &garden.Snapshot{Categories: []garden.Category{{Name: "seeds", Entries: entries}}}
}

func newTestService(t *testing.T, cfg Config, f *fakeFetcher, n *fakeNotifier) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	reg, err := registry.Load(st, logx.Nop())
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return New(cfg, st, reg, f, n, logx.Nop(), nil), st
}

func TestFirstCycleCommitsWithoutEvents(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{stock: stock(garden.Entry{Name: "Carrot", Quantity: 20})}
	n := &fakeNotifier{}
	s, st := newTestService(t, Config{BroadcastChats: []int64{-1}, Policy: Policy{StockChanges: true}}, f, n)

	s.RunStockCycle(context.Background())

	if got := n.notices(); len(got) != 0 {
		t.Fatalf("first observation must emit no events, got %+v", got)
	}
	state, err := st.LoadMonitoring()
	if err != nil {
		t.Fatalf("LoadMonitoring: %v", err)
	}
	if state.Stock.EntryCount() != 1 {
		t.Fatalf("snapshot not committed: %+v", state)
	}
}

func TestSecondCycleEmitsChangeBroadcasts(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{stock: stock(garden.Entry{Name: "Watermelon", Quantity: 0})}
	n := &fakeNotifier{}
	s, _ := newTestService(t, Config{
		BroadcastChats: []int64{-100, -200},
		Policy:         Policy{StockChanges: true},
	}, f, n)

	s.RunStockCycle(context.Background())
	f.stock = stock(garden.Entry{Name: "Watermelon", Quantity: 5})
	s.RunStockCycle(context.Background())

	got := n.notices()
	if len(got) != 2 {
		t.Fatalf("expected one notice per broadcast chat, got %+v", got)
	}
	for _, notice := range got {
		if notice.Kind != string(garden.EventQuantityChanged) || notice.Item != "Watermelon" {
			t.Fatalf("unexpected notice: %+v", notice)
		}
		if notice.DedupKey != "" {
			t.Fatalf("broadcast notices must not carry a dedup key: %+v", notice)
		}
	}
	if got[0].Target.ChatID == got[1].Target.ChatID {
		t.Fatalf("expected distinct chats, got %+v", got)
	}
}

func TestWatchlistMatchGoesToSubscriberDM(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{stock: stock(garden.Entry{Name: "Rock Candy", Quantity: 2})}
	n := &fakeNotifier{}
	s, _ := newTestService(t, Config{Policy: Policy{StockChanges: true}}, f, n)

	if _, err := s.reg.Add("4242", "rock"); err != nil {
		t.Fatalf("registry add: %v", err)
	}
	s.RunStockCycle(context.Background())

	got := n.notices()
	if len(got) != 1 {
		t.Fatalf("expected 1 DM, got %+v", got)
	}
	dm := got[0]
	if dm.Kind != "watchlist_match" || dm.SubscriberID != "4242" || dm.Target.ChatID != 4242 {
		t.Fatalf("unexpected DM: %+v", dm)
	}
	if dm.DedupKey == "" || !strings.Contains(dm.DedupKey, "Rock Candy") {
		t.Fatalf("DM missing dedup key: %+v", dm)
	}
}

func TestAnnouncePolicyFilters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		policy Policy
		ev     garden.ChangeEvent
		want   bool
	}{
		{
			name:   "stock change allowed",
			policy: Policy{StockChanges: true},
			ev:     garden.ChangeEvent{Kind: garden.EventQuantityChanged, Delta: 3},
			want:   true,
		},
		{
			name:   "stock changes disabled",
			policy: Policy{StockChanges: false},
			ev:     garden.ChangeEvent{Kind: garden.EventAppeared, Entry: garden.Entry{Quantity: 5}},
			want:   false,
		},
		{
			name:   "increase only drops decreases",
			policy: Policy{StockChanges: true, IncreaseOnly: true},
			ev:     garden.ChangeEvent{Kind: garden.EventQuantityChanged, Delta: -2},
			want:   false,
		},
		{
			name:   "increase only keeps increases",
			policy: Policy{StockChanges: true, IncreaseOnly: true},
			ev:     garden.ChangeEvent{Kind: garden.EventQuantityChanged, Delta: 2},
			want:   true,
		},
		{
			name:   "min quantity gates appearances",
			policy: Policy{StockChanges: true, MinQuantity: 3},
			ev:     garden.ChangeEvent{Kind: garden.EventAppeared, Entry: garden.Entry{Quantity: 2}},
			want:   false,
		},
		{
			name:   "weather disabled",
			policy: Policy{WeatherEvents: false},
			ev:     garden.ChangeEvent{Kind: garden.EventActivityStarted},
			want:   false,
		},
		{
			name:   "weather enabled",
			policy: Policy{WeatherEvents: true},
			ev:     garden.ChangeEvent{Kind: garden.EventActivityEnded},
			want:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := &Service{cfg: Config{Policy: tt.policy}}
			if got := s.announceChange("stock", tt.ev); got != tt.want {
				t.Fatalf("announceChange = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommitFailureKeepsPreviousState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := store.New(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Load(st, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{stock: stock(garden.Entry{Name: "Carrot", Quantity: 20})}
	n := &fakeNotifier{}
	s := New(Config{BroadcastChats: []int64{-1}, Policy: Policy{StockChanges: true}}, st, reg, f, n, logx.Nop(), nil)

	s.RunStockCycle(context.Background())

	// Make the next commit fail by removing the data directory.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	f.stock = stock(garden.Entry{Name: "Carrot", Quantity: 5})
	s.RunStockCycle(context.Background())

	// In-memory state must still mirror the last committed snapshot, so the
	// same change is re-detected once persistence recovers.
	state := s.LastState()
	if got := state.Stock.Categories[0].Entries[0].Quantity; got != 20 {
		t.Fatalf("state advanced past a failed commit: quantity %d, want 20", got)
	}
}

func TestFetchFailureAbandonsCycle(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{err: errors.New("api down")}
	n := &fakeNotifier{}
	s, st := newTestService(t, Config{BroadcastChats: []int64{-1}, Policy: Policy{StockChanges: true}}, f, n)

	s.RunStockCycle(context.Background())

	if got := n.notices(); len(got) != 0 {
		t.Fatalf("failed fetch must emit nothing, got %+v", got)
	}
	state, err := st.LoadMonitoring()
	if err != nil {
		t.Fatalf("LoadMonitoring: %v", err)
	}
	if state.Stock != nil {
		t.Fatalf("failed fetch must not commit: %+v", state)
	}
}

func TestWeatherCycleEvents(t *testing.T) {
	t.Parallel()
	weather := func(active bool) *garden.Snapshot {
		return &garden.Snapshot{Categories: []garden.Category{{
			Name:  "weather",
			Timed: true,
			Entries: []garden.Entry{{
				ID: "rain", Name: "Rain", Active: active,
			}},
		}}}
	}
	f := &fakeFetcher{weather: weather(false)}
	n := &fakeNotifier{}
	s, _ := newTestService(t, Config{
		BroadcastChats: []int64{-1},
		Policy:         Policy{WeatherEvents: true},
	}, f, n)

	s.RunWeatherCycle(context.Background())
	f.weather = weather(true)
	s.RunWeatherCycle(context.Background())

	got := n.notices()
	if len(got) != 1 {
		t.Fatalf("expected 1 weather notice, got %+v", got)
	}
	if got[0].Kind != string(garden.EventActivityStarted) || got[0].Domain != "weather" {
		t.Fatalf("unexpected notice: %+v", got[0])
	}
}
