package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/logging"
)

// MediationError wraps a persistence I/O failure. The in-memory operation
// that triggered the write still completes; the error is only logged.
type MediationError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *MediationError) Error() string {
	return fmt.Sprintf("cache mediation failed during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying I/O error.
func (e *MediationError) Unwrap() error { return e.Err }

// persistedEntry is the snapshot wire form of one cache entry.
type persistedEntry struct {
	Value          any   `json:"value"`
	LastAccessTime int64 `json:"lastAccessTime"` // epoch milliseconds
	TTL            int64 `json:"ttl"`            // milliseconds
}

func (p persistedEntry) expired(now time.Time) bool {
	last := time.UnixMilli(p.LastAccessTime)
	return now.After(last.Add(time.Duration(p.TTL) * time.Millisecond))
}

// snapshotFile is one rotation unit, keyed by date stamp and sequence index.
var snapshotName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(\d+)\.json$`)

type snapshotFile struct {
	name string
	date string
	seq  int
}

// Store persists full-map snapshots to a directory of dated, size-capped
// JSON files and reads them back newest-first.
type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	log      *logging.Logger
}

// NewStore creates a snapshot store rooted at dir on the given filesystem.
func NewStore(fs afero.Fs, dir string, maxBytes int64, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &Store{fs: fs, dir: dir, maxBytes: maxBytes, log: log}, nil
}

// Write serializes the full snapshot into the current rotation file, rolling
// over to the next sequence index when the current file is over the cap.
func (s *Store) Write(snapshot map[string]persistedEntry) (int64, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return 0, &MediationError{Op: "encode", Err: err}
	}

	name, err := s.currentFile(time.Now())
	if err != nil {
		return 0, &MediationError{Op: "rotate", Err: err}
	}

	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), data, 0o644); err != nil {
		return 0, &MediationError{Op: "write", Err: err}
	}
	return int64(len(data)), nil
}

// Lookup scans snapshot files newest-to-oldest for the first unexpired entry
// under key. Unreadable files are logged and skipped, never fatal.
func (s *Store) Lookup(key string, now time.Time) (persistedEntry, bool) {
	files, err := s.files()
	if err != nil {
		s.log.Warn("failed to list snapshot files", zap.Error(&MediationError{Op: "list", Err: err}))
		return persistedEntry{}, false
	}

	for _, f := range files {
		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, f.name))
		if err != nil {
			s.log.Warn("skipping unreadable snapshot file",
				zap.String("file", f.name), zap.Error(err))
			continue
		}

		var snapshot map[string]persistedEntry
		if err := json.Unmarshal(data, &snapshot); err != nil {
			s.log.Warn("skipping corrupt snapshot file",
				zap.String("file", f.name), zap.Error(err))
			continue
		}

		if pe, ok := snapshot[key]; ok && !pe.expired(now) {
			return pe, true
		}
	}
	return persistedEntry{}, false
}

// currentFile picks the rotation file for a write: the highest sequence for
// today, advanced by one when that file already exceeds the size cap.
func (s *Store) currentFile(now time.Time) (string, error) {
	date := now.Format("2006-01-02")

	files, err := s.files()
	if err != nil {
		return "", err
	}

	seq := 0
	for _, f := range files {
		if f.date == date {
			seq = f.seq
			if info, err := s.fs.Stat(filepath.Join(s.dir, f.name)); err == nil && info.Size() >= s.maxBytes {
				seq = f.seq + 1
			}
			break
		}
	}
	return fmt.Sprintf("%s-%d.json", date, seq), nil
}

// files lists snapshot files sorted newest-first (date desc, sequence desc).
func (s *Store) files() ([]snapshotFile, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}

	var files []snapshotFile
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		m := snapshotName.FindStringSubmatch(info.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{name: info.Name(), date: m[1], seq: seq})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date > files[j].date
		}
		return files[i].seq > files[j].seq
	})
	return files, nil
}
