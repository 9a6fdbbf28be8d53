package garden

import (
	"sort"
	"strings"
)

// Match scans a snapshot against a registry of subscriber watchlists and
// reports every in-stock entry a subscriber is interested in.
//
// A term matches when the lowercase entry name contains the term, or the
// term contains the lowercase entry name. The looseness is deliberate:
// users type partial names ("melon") and sometimes over-long ones
// ("watermelon seed"). Entries with zero quantity are never reported.
//
// Match is stateless and re-reports a match on every call while it holds;
// cross-cycle suppression is the notifier's concern. At most one event is
// emitted per (subscriber, entry) pair per call, even when several terms
// match the same entry.
//
// The scan is O(subscribers x terms x entries), fine at tens of
// subscribers and hundreds of entries. Swap in a term index here if that
// ever stops being true; the contract doesn't change.
func Match(snapshot *Snapshot, registry map[string][]string) []MatchEvent {
	if snapshot == nil || len(registry) == 0 {
		return nil
	}

	// Deterministic subscriber order.
	subs := make([]string, 0, len(registry))
	for id := range registry {
		subs = append(subs, id)
	}
	sort.Strings(subs)

	var events []MatchEvent
	for _, sub := range subs {
		terms := registry[sub]
		if len(terms) == 0 {
			continue
		}
		for ci := range snapshot.Categories {
			cat := &snapshot.Categories[ci]
			for _, e := range cat.Entries {
				if e.Quantity <= 0 {
					continue
				}
				if !termsMatch(terms, e.Name) {
					continue
				}
				events = append(events, MatchEvent{
					SubscriberID: sub,
					Category:     cat.Name,
					Entry:        e,
				})
			}
		}
	}
	return events
}

func termsMatch(terms []string, entryName string) bool {
	lower := strings.ToLower(entryName)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) || strings.Contains(t, lower) {
			return true
		}
	}
	return false
}

// NormalizeTerm canonicalizes a watched term for set membership.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
