// Package jobstore persists jobs as JSON documents on disk, one
// directory per job. Writes go through a temp file and rename so a crash
// never leaves a half-written job behind.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/model"
)

// ErrNotFound is returned when no job exists for an id.
var ErrNotFound = errors.New("jobstore: job not found")

const (
	jobFile     = "job.json"
	lineageFile = "lineage.ndjson"
)

// Store persists jobs under a root directory.
type Store struct {
	dir string
	log *zap.Logger

	// mu serializes writes per process. Jobs are single-writer by
	// design; this guards the list/sweep walkers against renames.
	mu sync.RWMutex
}

// New creates the root directory if needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) jobDir(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}

// Save writes the job atomically.
func (s *Store) Save(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.jobDir(job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	tmp, err := os.CreateTemp(dir, jobFile+".tmp*")
	if err != nil {
		return fmt.Errorf("stage job %s: %w", job.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("stage job %s: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("stage job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, jobFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit job %s: %w", job.ID, err)
	}
	return nil
}

// Load reads one job.
func (s *Store) Load(id uuid.UUID) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.jobDir(id), jobFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// List returns all persisted jobs sorted by creation time, newest first.
// Unreadable entries are skipped with a log line rather than failing the
// listing.
func (s *Store) List() ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []*model.Job
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name(), jobFile))
		if err != nil {
			s.log.Warn("skipping unreadable job", zap.String("id", id.String()), zap.Error(err))
			continue
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			s.log.Warn("skipping corrupt job", zap.String("id", id.String()), zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// Delete removes a job and its lineage log.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.jobDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// AppendLineage appends annotation lineage events to the job's NDJSON
// audit log. The log is append-only and survives job re-saves.
func (s *Store) AppendLineage(id uuid.UUID, events []model.LineageEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, lineageFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open lineage log %s: %w", id, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("append lineage %s: %w", id, err)
		}
	}
	return nil
}

// ReadLineage returns the job's full lineage audit log.
func (s *Store) ReadLineage(id uuid.UUID) ([]model.LineageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(filepath.Join(s.jobDir(id), lineageFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lineage %s: %w", id, err)
	}
	defer f.Close()

	var out []model.LineageEvent
	dec := json.NewDecoder(f)
	for dec.More() {
		var e model.LineageEvent
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode lineage %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Sweep deletes terminal jobs not updated within the retention window
// and returns how many were removed. Running jobs are never swept.
func (s *Store) Sweep(retention time.Duration) (int, error) {
	jobs, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	removed := 0
	for _, job := range jobs {
		if !job.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(job.ID); err != nil {
			s.log.Warn("sweep failed for job", zap.String("id", job.ID.String()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("swept expired jobs", zap.Int("removed", removed))
	}
	return removed, nil
}
