// Package state owns the persisted dimension mapping and load history. Both
// files are rewritten whole on every update; a single process may write them
// at a time.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MappingFile = "dimension_mapping.json"
	HistoryFile = "load_history.json"
)

// FileStatus classifies a dimension file against its recorded mapping.
type FileStatus string

const (
	StatusNew          FileStatus = "new"
	StatusUnchanged    FileStatus = "unchanged"
	StatusModified     FileStatus = "modified"
	StatusTableDeleted FileStatus = "table_deleted"
)

// Mapping is what is remembered about one dimension file.
type Mapping struct {
	Table       string    `json:"table_name"`
	Key         string    `json:"key"`
	ContentHash string    `json:"content_hash"`
	LastLoad    time.Time `json:"last_load_ts"`
	RowCount    int       `json:"row_count"`
}

// HistoryEntry records one load or delete.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Table     string    `json:"table"`
	Action    string    `json:"action"`
	Rows      int64     `json:"rows"`
	Backend   string    `json:"backend"`
	Periods   []string  `json:"periods,omitempty"`
	Failed    int64     `json:"failed,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Actions recorded in the history.
const (
	ActionLoad         = "load"
	ActionOverwrite    = "overwrite"
	ActionDeletePeriod = "delete_period"
	ActionDimension    = "dimension"
)

type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// MappingKey is the key under which a dimension file is remembered.
func MappingKey(file string) string {
	return filepath.Base(file)
}

func (s *Store) Mappings() (map[string]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMappings()
}

func (s *Store) Mapping(file string) (Mapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readMappings()
	if err != nil {
		return Mapping{}, false, err
	}
	m, ok := all[MappingKey(file)]
	return m, ok, nil
}

func (s *Store) SaveMapping(file string, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readMappings()
	if err != nil {
		return err
	}
	if m.LastLoad.IsZero() {
		m.LastLoad = s.now()
	}
	all[MappingKey(file)] = m
	return s.write(MappingFile, all)
}

// Classify compares a file's current hash and table presence with its mapping.
func Classify(m Mapping, known bool, hash string, tableExists bool) FileStatus {
	switch {
	case !known:
		return StatusNew
	case !tableExists:
		return StatusTableDeleted
	case m.ContentHash != hash:
		return StatusModified
	default:
		return StatusUnchanged
	}
}

// AppendHistory stores e, assigning its ID and timestamp when empty.
func (s *Store) AppendHistory(e HistoryEntry) (HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []HistoryEntry
	if err := s.read(HistoryFile, &entries); err != nil {
		return e, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	entries = append(entries, e)
	return e, s.write(HistoryFile, entries)
}

// History returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []HistoryEntry
	if err := s.read(HistoryFile, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) readMappings() (map[string]Mapping, error) {
	all := map[string]Mapping{}
	if err := s.read(MappingFile, &all); err != nil {
		return nil, err
	}
	if all == nil {
		all = map[string]Mapping{}
	}
	return all, nil
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write replaces the file through a temp file and rename.
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
