// Package storage keeps run outputs on disk: one directory per run with
// metadata, the scalar series and snapshots.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	metadataFile = "metadata.json"
	scalarsFile  = "scalars.csv"
	snapshotDir  = "snapshots"
)

type Store struct {
	baseDir string
	catalog *Catalog
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// WithCatalog records every finished run in c as well.
func (s *Store) WithCatalog(c *Catalog) *Store {
	s.catalog = c
	return s
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Timestamp      time.Time          `json:"timestamp"`
	Seed           uint64             `json:"seed"`
	Particles      int                `json:"particles"`
	Dim            int                `json:"dim"`
	Dt             float64            `json:"dt"`
	Steps          int                `json:"steps"`
	ReportInterval int                `json:"report_interval"`
	Integrator     string             `json:"integrator"`
	Launch         string             `json:"launch"`
	Status         string             `json:"status"`
	Error          string             `json:"error,omitempty"`
	Metrics        map[string]float64 `json:"metrics"`
}

// Create allocates a run directory. The run ID is a fresh UUID prefixed
// with the run name.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%s", sanitize(meta.Name), uuid.NewString())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	meta.Status = "running"

	dir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(filepath.Join(dir, snapshotDir), 0755); err != nil {
		return nil, err
	}
	return newRun(s, dir, meta)
}

func sanitize(name string) string {
	if name == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}

// List returns the runs under the base directory, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	slices.SortFunc(runs, func(a, b RunMetadata) int { return b.Timestamp.Compare(a.Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Resolve accepts a full run ID or a unique prefix of one.
func (s *Store) Resolve(prefix string) (string, error) {
	if _, err := os.Stat(filepath.Join(s.baseDir, prefix, metadataFile)); err == nil {
		return prefix, nil
	}
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("storage: run prefix %q is ambiguous", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("storage: no run matches %q: %w", prefix, os.ErrNotExist)
	}
	return match, nil
}

func writeJSON(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
