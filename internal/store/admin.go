package store

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Stats is a read-only aggregate over the persisted state. It is
// recomputed from disk on every call, never cached.
type Stats struct {
	SubscriberCount      int
	TotalWatchedTerms    int
	AveragePerSubscriber float64
	WatchlistsPresent    bool
	MonitoringPresent    bool
}

func (s *Store) Stats() (Stats, error) {
	watchlists, err := s.LoadWatchlists()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return Stats{}, err
	}

	var st Stats
	st.SubscriberCount = len(watchlists)
	for _, terms := range watchlists {
		st.TotalWatchedTerms += len(terms)
	}
	if st.SubscriberCount > 0 {
		st.AveragePerSubscriber = float64(st.TotalWatchedTerms) / float64(st.SubscriberCount)
	}
	st.WatchlistsPresent = fileExists(s.watchlistPath())
	st.MonitoringPresent = fileExists(s.monitoringPath())
	return st, nil
}

// ExportDoc bundles everything into one document for manual backup.
type ExportDoc struct {
	ExportedAt string              `json:"exportDate"`
	Version    string              `json:"version"`
	Watchlists map[string][]string `json:"watchlists"`
	Monitoring MonitorState        `json:"monitoring"`
}

// Export reads both documents and returns them as a single export bundle.
func (s *Store) Export() (ExportDoc, error) {
	watchlists, err := s.LoadWatchlists()
	if err != nil {
		return ExportDoc{}, err
	}
	monitoring, err := s.LoadMonitoring()
	if err != nil {
		return ExportDoc{}, err
	}
	return ExportDoc{
		ExportedAt: s.now().UTC().Format(time.RFC3339),
		Version:    docVersion,
		Watchlists: watchlists,
		Monitoring: monitoring,
	}, nil
}

// Import writes an export bundle back into the live documents.
func (s *Store) Import(doc ExportDoc) error {
	if doc.Watchlists != nil {
		if err := s.SaveWatchlists(doc.Watchlists); err != nil {
			return err
		}
	}
	if err := s.SaveMonitoring(doc.Monitoring); err != nil {
		return err
	}
	return nil
}

// ValidationReport summarizes an integrity check of the persisted state.
type ValidationReport struct {
	Subscribers     int
	WatchedTerms    int
	InvalidEntries  []string
	MonitoringValid bool
}

// Validate checks that every registry value is a well-formed set of
// non-empty strings and that the monitoring document parses.
func (s *Store) Validate() (ValidationReport, error) {
	var rep ValidationReport

	watchlists, err := s.LoadWatchlists()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return rep, err
	}
	if errors.Is(err, ErrCorrupt) {
		rep.InvalidEntries = append(rep.InvalidEntries, watchlistFile)
	}

	for id, terms := range watchlists {
		seen := make(map[string]bool, len(terms))
		ok := id != ""
		for _, t := range terms {
			if t == "" || seen[t] {
				ok = false
				break
			}
			seen[t] = true
		}
		if !ok {
			rep.InvalidEntries = append(rep.InvalidEntries, fmt.Sprintf("watchlist %q", id))
			continue
		}
		rep.Subscribers++
		rep.WatchedTerms += len(terms)
	}

	_, merr := s.LoadMonitoring()
	rep.MonitoringValid = merr == nil
	if merr != nil && !errors.Is(merr, ErrCorrupt) {
		return rep, merr
	}
	return rep, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
