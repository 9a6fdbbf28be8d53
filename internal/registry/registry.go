// Package registry keeps the in-memory subscriber watchlists and writes
// them through to the store after every mutation.
package registry

import (
	"errors"
	"sort"
	"sync"

	"gardenbot/internal/garden"
	"gardenbot/internal/store"
	"gardenbot/pkg/logx"
)

// Registry is safe for concurrent use; a single mutex serializes command
// handlers against poll cycles.
type Registry struct {
	mu    sync.Mutex
	st    *store.Store
	log   logx.Logger
	lists map[string]map[string]struct{}
}

// Load builds the registry from the persisted document. A corrupt document
// yields an empty registry and the surfaced store error; the registry is
// still usable.
func Load(st *store.Store, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{st: st, log: log, lists: map[string]map[string]struct{}{}}

	watchlists, err := st.LoadWatchlists()
	for id, terms := range watchlists {
		set := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if n := garden.NormalizeTerm(t); n != "" {
				set[n] = struct{}{}
			}
		}
		if len(set) > 0 {
			r.lists[id] = set
		}
	}
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			log.Warn("watchlist document corrupt; starting with empty registry", logx.Err(err))
			return r, err
		}
		return nil, err
	}
	log.Info("watchlists loaded", logx.Int("subscribers", len(r.lists)))
	return r, nil
}

// Add registers a watched term for a subscriber. Returns false if the term
// was already present. The change is persisted before returning.
func (r *Registry) Add(subscriber, term string) (bool, error) {
	term = garden.NormalizeTerm(term)
	if subscriber == "" || term == "" {
		return false, errors.New("registry: subscriber and term are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.lists[subscriber]
	if !ok {
		set = map[string]struct{}{}
		r.lists[subscriber] = set
	}
	if _, dup := set[term]; dup {
		return false, nil
	}
	set[term] = struct{}{}
	return true, r.saveLocked()
}

// Remove drops a watched term. Returns false if the term was not present.
func (r *Registry) Remove(subscriber, term string) (bool, error) {
	term = garden.NormalizeTerm(term)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.lists[subscriber]
	if !ok {
		return false, nil
	}
	if _, present := set[term]; !present {
		return false, nil
	}
	delete(set, term)
	if len(set) == 0 {
		delete(r.lists, subscriber)
	}
	return true, r.saveLocked()
}

// Terms returns a subscriber's watched terms, sorted.
func (r *Registry) Terms(subscriber string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedTerms(r.lists[subscriber])
}

// View returns a deep copy of the whole registry, suitable for the
// watchlist matcher and for persistence.
func (r *Registry) View() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Save persists the current registry (used by the periodic flush and the
// shutdown path; mutations already write through).
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	return r.st.SaveWatchlists(r.viewLocked())
}

func (r *Registry) viewLocked() map[string][]string {
	out := make(map[string][]string, len(r.lists))
	for id, set := range r.lists {
		out[id] = sortedTerms(set)
	}
	return out
}

func sortedTerms(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
