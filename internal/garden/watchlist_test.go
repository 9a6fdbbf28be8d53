package garden

import "testing"

func TestMatchSubstringBothDirections(t *testing.T) {
	t.Parallel()
	snap := stockSnapshot("seeds", Entry{Name: "Watermelon", Quantity: 3})

	tests := []struct {
		name  string
		term  string
		match bool
	}{
		{name: "term inside entry", term: "melon", match: true},
		{name: "entry inside term", term: "watermelon seed", match: true},
		{name: "exact", term: "watermelon", match: true},
		// Terms are stored normalized; an unnormalized term is not folded here.
		{name: "uppercase term", term: "WATERMELON", match: false},
		{name: "unrelated", term: "carrot", match: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			events := Match(snap, map[string][]string{"42": {tt.term}})
			if got := len(events) == 1; got != tt.match {
				t.Fatalf("Match with term %q = %v, want %v (%+v)", tt.term, got, tt.match, events)
			}
		})
	}
}

func TestMatchZeroQuantityNeverMatches(t *testing.T) {
	t.Parallel()
	snap := stockSnapshot("seeds", Entry{Name: "Watermelon", Quantity: 0})
	events := Match(snap, map[string][]string{"42": {"watermelon"}})
	if len(events) != 0 {
		t.Fatalf("zero-quantity entry matched: %+v", events)
	}
}

func TestMatchOneEventPerSubscriberEntry(t *testing.T) {
	t.Parallel()
	snap := stockSnapshot("seeds", Entry{Name: "Watermelon", Quantity: 3})
	// Two terms hit the same entry; still one event.
	events := Match(snap, map[string][]string{"42": {"melon", "water"}})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
}

func TestMatchGearScenario(t *testing.T) {
	t.Parallel()
	snap := &Snapshot{Categories: []Category{
		{Name: "seeds", Entries: []Entry{{Name: "Carrot", Quantity: 20}}},
		{Name: "gear", Entries: []Entry{
			{Name: "Rock Candy", Quantity: 2},
			{Name: "Watering Can", Quantity: 0},
		}},
	}}
	registry := map[string][]string{
		"7":  {"rock"},
		"42": {"watering can"},
	}

	events := Match(snap, registry)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.SubscriberID != "7" || ev.Category != "gear" || ev.Entry.Name != "Rock Candy" {
		t.Fatalf("unexpected match: %+v", ev)
	}
}

func TestMatchDeterministicSubscriberOrder(t *testing.T) {
	t.Parallel()
	snap := stockSnapshot("seeds", Entry{Name: "Carrot", Quantity: 5})
	registry := map[string][]string{
		"9": {"carrot"},
		"1": {"carrot"},
		"5": {"carrot"},
	}

	first := Match(snap, registry)
	for i := 0; i < 10; i++ {
		again := Match(snap, registry)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d events, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].SubscriberID != first[j].SubscriberID {
				t.Fatalf("run %d: order changed: %+v vs %+v", i, again, first)
			}
		}
	}
	if first[0].SubscriberID != "1" || first[1].SubscriberID != "5" || first[2].SubscriberID != "9" {
		t.Fatalf("subscribers not in sorted order: %+v", first)
	}
}

func TestNormalizeTerm(t *testing.T) {
	t.Parallel()
	if got := NormalizeTerm("  Rock Candy "); got != "rock candy" {
		t.Fatalf("NormalizeTerm = %q", got)
	}
}
