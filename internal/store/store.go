// Package store owns the on-disk document state: the watchlist registry and
// the last-observed monitoring snapshots, plus timestamped backups of both.
//
// Files:
//   - <dir>/watchlists.json
//   - <dir>/monitoring-data.json
//   - <dir>/backups/<base>_<timestamp>.json (verbatim pre-overwrite copies)
//
// Documents are overwritten wholesale. Every save first copies the existing
// file into the backup area, then writes to a temp file and renames it over
// the target, so a crash mid-write never corrupts the committed document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gardenbot/internal/garden"
	"gardenbot/pkg/logx"
)

const (
	watchlistFile  = "watchlists.json"
	monitoringFile = "monitoring-data.json"
	backupDirName  = "backups"

	docVersion = "1.0"

	// DefaultBackupKeep is how many backups survive a prune per retention
	// policy (newest first, across all document names).
	DefaultBackupKeep = 10
)

// ErrCorrupt marks a persisted document that exists but does not parse.
// Loaders substitute a default value and still return this error so the
// caller can surface it; the process keeps running.
var ErrCorrupt = errors.New("corrupt persisted document")

// WatchlistDoc is the on-disk shape of the subscription registry.
type WatchlistDoc struct {
	LastUpdated string              `json:"lastUpdated"`
	Version     string              `json:"version"`
	Watchlists  map[string][]string `json:"watchlists"`
}

// MonitorState holds the last-observed snapshot per monitored domain.
// Pointers are nil until the first successful fetch.
type MonitorState struct {
	Stock   *garden.Snapshot `json:"stock"`
	Weather *garden.Snapshot `json:"weather"`
}

// MonitorDoc is the on-disk shape of the monitoring state.
type MonitorDoc struct {
	LastUpdated string       `json:"lastUpdated"`
	Version     string       `json:"version"`
	Data        MonitorState `json:"data"`
}

// Store reads and writes the two live documents and their backups.
// Methods are not internally synchronized; the coordinator serializes
// access (single-writer model).
type Store struct {
	dir       string
	backupDir string
	log       logx.Logger

	now func() time.Time
}

func New(dir string, log logx.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store: data dir is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		dir:       dir,
		backupDir: filepath.Join(dir, backupDirName),
		log:       log,
		now:       time.Now,
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: init data dirs: %w", err)
	}
	return s, nil
}

func (s *Store) watchlistPath() string  { return filepath.Join(s.dir, watchlistFile) }
func (s *Store) monitoringPath() string { return filepath.Join(s.dir, monitoringFile) }

// LoadWatchlists reads the registry document. A missing file yields an
// empty registry and no error; a malformed one yields an empty registry
// and an error wrapping ErrCorrupt.
func (s *Store) LoadWatchlists() (map[string][]string, error) {
	var doc WatchlistDoc
	err := s.loadDoc(s.watchlistPath(), &doc)
	if err != nil {
		return map[string][]string{}, err
	}
	if doc.Watchlists == nil {
		return map[string][]string{}, nil
	}
	return doc.Watchlists, nil
}

// SaveWatchlists persists the registry, backing up the prior document first.
func (s *Store) SaveWatchlists(watchlists map[string][]string) error {
	if watchlists == nil {
		watchlists = map[string][]string{}
	}
	doc := WatchlistDoc{
		LastUpdated: s.now().UTC().Format(time.RFC3339),
		Version:     docVersion,
		Watchlists:  watchlists,
	}
	if err := s.saveDoc(s.watchlistPath(), doc); err != nil {
		return err
	}
	s.log.Debug("watchlists saved", logx.Int("subscribers", len(watchlists)))
	return nil
}

// LoadMonitoring reads the monitoring document. Missing file yields empty
// state; malformed content yields empty state plus an ErrCorrupt error.
func (s *Store) LoadMonitoring() (MonitorState, error) {
	var doc MonitorDoc
	if err := s.loadDoc(s.monitoringPath(), &doc); err != nil {
		return MonitorState{}, err
	}
	return doc.Data, nil
}

// SaveMonitoring persists the monitoring state wholesale.
func (s *Store) SaveMonitoring(state MonitorState) error {
	doc := MonitorDoc{
		LastUpdated: s.now().UTC().Format(time.RFC3339),
		Version:     docVersion,
		Data:        state,
	}
	if err := s.saveDoc(s.monitoringPath(), doc); err != nil {
		return err
	}
	s.log.Debug("monitoring state saved")
	return nil
}

func (s *Store) loadDoc(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("store: parse %s: %w: %w", filepath.Base(path), ErrCorrupt, err)
	}
	return nil
}

// saveDoc backs up the existing file (if any), then writes the new content
// atomically via temp file + rename.
func (s *Store) saveDoc(path string, doc any) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.backupFile(path); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// backupFile copies the current document verbatim into the backup area.
// The name embeds the wall-clock time (millisecond precision) with the
// characters that are awkward in filenames replaced by dashes.
func (s *Store) backupFile(path string) error {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stamp := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	dst := filepath.Join(s.backupDir, base+"_"+stamp+".json")

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("store: open for backup: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("store: create backup: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("store: copy backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("store: close backup: %w", err)
	}
	return nil
}
