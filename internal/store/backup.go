package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gardenbot/pkg/logx"
)

// BackupInfo describes one backup artifact.
type BackupInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListBackups returns all backup artifacts, newest first.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list backups: %w", err)
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sortBackups(out)
	return out, nil
}

// PruneBackups deletes everything beyond the keep newest backups (across
// all document names) and returns how many were removed. Live documents
// are never touched; only files inside the backup dir are candidates.
func (s *Store) PruneBackups(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := s.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(filepath.Join(s.backupDir, b.Name)); err != nil {
			s.log.Warn("backup removal failed", logx.String("name", b.Name), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("old backups pruned", logx.Int("removed", removed), logx.Int("kept", keep))
	}
	return removed, nil
}

// Restore copies a backup's content back over the matching live document.
// The document kind is detected from the backup's own payload.
func (s *Store) Restore(name string) error {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("store: restore: backup name is required")
	}
	b, err := os.ReadFile(filepath.Join(s.backupDir, name))
	if err != nil {
		return fmt.Errorf("store: read backup %s: %w", name, err)
	}

	var probe struct {
		Watchlists map[string][]string `json:"watchlists"`
		Data       *MonitorState       `json:"data"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("store: parse backup %s: %w: %w", name, ErrCorrupt, err)
	}

	switch {
	case probe.Watchlists != nil:
		return s.SaveWatchlists(probe.Watchlists)
	case probe.Data != nil:
		return s.SaveMonitoring(*probe.Data)
	default:
		return fmt.Errorf("store: backup %s matches no known document", name)
	}
}

// sortBackups orders newest first by mtime, tie-broken by the embedded
// timestamp in the name (fixed-width, so lexicographic works).
func sortBackups(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Name > backups[j].Name
	})
}
