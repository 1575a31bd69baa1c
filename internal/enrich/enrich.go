// Package enrich is the programmatic API the HTTP routes and the CLI
// wrap: job submission and tracking, result retrieval, the event stream
// and the user-action surface. It owns the job semaphore and persistence.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/ingest"
	"github.com/folioenrich/folioenrich/internal/jobstore"
	"github.com/folioenrich/folioenrich/internal/metrics"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/pipeline"
)

// Event is one entry of a job's event stream.
type Event struct {
	JobID   string      `json:"job_id"`
	Stage   string      `json:"stage,omitempty"`
	Kind    string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// jobEntry is the in-memory state for one known job.
type jobEntry struct {
	mu     sync.Mutex
	job    *model.Job
	cancel context.CancelFunc
	done   chan struct{}
	subs   map[chan Event]struct{}
}

func (e *jobEntry) publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall the pipeline.
		}
	}
}

// Service runs and tracks enrichment jobs.
type Service struct {
	cfg   model.Config
	log   *zap.Logger
	pipe  *pipeline.Pipeline
	store *jobstore.Store

	sem chan struct{}

	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobEntry
}

// New creates the service. store may be nil for ephemeral use.
func New(cfg model.Config, log *zap.Logger, pipe *pipeline.Pipeline, store *jobstore.Store) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	max := cfg.MaxConcurrentJobs
	if max <= 0 {
		max = 10
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		pipe:  pipe,
		store: store,
		sem:   make(chan struct{}, max),
		jobs:  make(map[uuid.UUID]*jobEntry),
	}
}

// Submit validates and normalizes the input synchronously, then runs the
// pipeline in the background. Invalid input fails here; everything after
// acceptance is reported through the job.
func (s *Service) Submit(ctx context.Context, raw []byte, format model.DocumentFormat) (uuid.UUID, error) {
	if int64(len(raw)) > s.cfg.MaxUploadBytes {
		return uuid.Nil, fmt.Errorf("%w: upload exceeds %d bytes", model.ErrInput, s.cfg.MaxUploadBytes)
	}

	select {
	case s.sem <- struct{}{}:
	default:
		return uuid.Nil, fmt.Errorf("%w: job limit reached (%d)", model.ErrTransientDependency, cap(s.sem))
	}

	doc, err := ingest.Normalize(raw, format, s.cfg)
	if err != nil {
		<-s.sem
		return uuid.Nil, err
	}

	job := model.NewJob()
	job.Document = doc

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobHardTimeout())
	entry := &jobEntry{
		job:    job,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[chan Event]struct{}),
	}

	s.mu.Lock()
	s.jobs[job.ID] = entry
	s.mu.Unlock()

	go s.run(runCtx, entry)
	return job.ID, nil
}

func (s *Service) run(ctx context.Context, entry *jobEntry) {
	defer func() { <-s.sem }()
	defer entry.cancel()
	defer close(entry.done)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	job := entry.job
	s.transition(entry, model.JobRunning, "")

	// Per-job pipeline view so stage progress lands on this job only.
	pipe := *s.pipe
	pipe.OnStage = func(stage string) {
		s.transition(entry, model.JobRunning, stage)
		entry.publish(Event{JobID: job.ID.String(), Stage: stage, Kind: "stage.started"})
	}

	// After each stage the pipeline hands over its quiescent result; a
	// deep copy becomes the partial result, and diffing consecutive
	// snapshots drives the annotation event stream. The hook runs on the
	// orchestrator goroutine, so prev needs no lock.
	prev := map[string]annState{}
	pipe.OnStageDone = func(stage string, r *model.JobResult) {
		snap := r.Clone()
		prev = s.publishAnnotationEvents(entry, prev, snap)
		entry.mu.Lock()
		job.Result = snap
		entry.mu.Unlock()
	}

	res, err := pipe.Run(ctx, job.Document)
	if res != nil {
		prev = s.publishAnnotationEvents(entry, prev, res)
	}

	entry.mu.Lock()
	if res != nil {
		job.Result = res
	}
	switch {
	case err != nil && ctx.Err() != nil:
		job.State = model.JobCancelled
		job.Error = ctx.Err().Error()
	case err != nil:
		job.State = model.JobFailed
		job.Error = err.Error()
	case len(res.QualitySignals) > 0:
		job.State = model.JobCompletedWithWarnings
	default:
		job.State = model.JobCompleted
	}
	job.CurrentStage = ""
	job.Touch()
	state := job.State
	entry.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(state)).Inc()
	s.persist(entry)
	entry.publish(Event{JobID: job.ID.String(), Kind: "job." + string(state)})
	s.log.Info("job finished",
		zap.String("id", job.ID.String()),
		zap.String("state", string(state)))
}

// annState is the per-annotation fingerprint used to diff consecutive
// result snapshots into stream events.
type annState struct {
	lineage int
	state   model.State
}

// publishAnnotationEvents emits annotation.added, annotation.updated and
// annotation.removed events for every change between the previous
// fingerprint map and the given snapshot, and returns the new map. The
// payload is the full ConceptMatch from the snapshot.
func (s *Service) publishAnnotationEvents(entry *jobEntry, prev map[string]annState, res *model.JobResult) map[string]annState {
	id := entry.job.ID.String()
	next := make(map[string]annState, len(res.Annotations))
	for _, m := range res.Annotations {
		cur := annState{lineage: len(m.Lineage), state: m.State}
		next[m.ID] = cur
		old, seen := prev[m.ID]
		switch {
		case !seen:
			entry.publish(Event{JobID: id, Kind: "annotation.added", Payload: m})
		case old.state != model.StateRejected && cur.state == model.StateRejected:
			entry.publish(Event{JobID: id, Kind: "annotation.removed", Payload: m})
		case old.lineage != cur.lineage:
			entry.publish(Event{JobID: id, Kind: "annotation.updated", Payload: m})
		}
	}
	return next
}

func (s *Service) transition(entry *jobEntry, state model.JobState, stage string) {
	entry.mu.Lock()
	entry.job.State = state
	entry.job.CurrentStage = stage
	entry.job.Touch()
	entry.mu.Unlock()
}

func (s *Service) persist(entry *jobEntry) {
	if s.store == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := s.store.Save(entry.job); err != nil {
		s.log.Error("persist job", zap.String("id", entry.job.ID.String()), zap.Error(err))
	}
}

// entry returns the in-memory job, falling back to the store for jobs
// from a previous process life.
func (s *Service) entry(id uuid.UUID) (*jobEntry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", jobstore.ErrNotFound, id)
	}
	job, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	e = &jobEntry{
		job:  job,
		done: closedChan(),
		subs: make(map[chan Event]struct{}),
	}
	s.mu.Lock()
	if cur, ok := s.jobs[id]; ok {
		e = cur
	} else {
		s.jobs[id] = e
	}
	s.mu.Unlock()
	return e, nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Status reports state, current stage, entity counts and timings.
type Status struct {
	ID           string              `json:"id"`
	State        model.JobState      `json:"state"`
	CurrentStage string              `json:"current_stage,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Counts       map[string]int      `json:"counts"`
	Timings      []model.StageTiming `json:"timings,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Status returns the job's progress snapshot.
func (s *Service) Status(id uuid.UUID) (*Status, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &Status{
		ID:           e.job.ID.String(),
		State:        e.job.State,
		CurrentStage: e.job.CurrentStage,
		CreatedAt:    e.job.CreatedAt,
		UpdatedAt:    e.job.UpdatedAt,
		Counts:       map[string]int{},
		Error:        e.job.Error,
	}
	if r := e.job.Result; r != nil {
		st.Counts["annotations"] = len(r.Annotations)
		st.Counts["individuals"] = len(r.Individuals)
		st.Counts["properties"] = len(r.Properties)
		st.Counts["triples"] = len(r.Triples)
		st.Counts["quality_signals"] = len(r.QualitySignals)
		st.Timings = r.Timings
	}
	return st, nil
}

// Result returns the job result. With partial false it blocks until the
// job reaches a terminal state or ctx expires; with partial true it
// returns whatever exists right now.
func (s *Service) Result(ctx context.Context, id uuid.UUID, partial bool) (*model.JobResult, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	if !partial {
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Result == nil {
		return nil, fmt.Errorf("%w: job %s has no result yet", model.ErrInput, id)
	}
	return e.job.Result, nil
}

// Cancel requests cancellation of a running job. Terminal jobs are left
// untouched.
func (s *Service) Cancel(id uuid.UUID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	terminal := e.job.Terminal()
	cancel := e.cancel
	e.mu.Unlock()
	if terminal || cancel == nil {
		return nil
	}
	cancel()
	return nil
}

// Subscribe attaches an event stream to a job. The returned func detaches
// it; callers must call it exactly once.
func (s *Service) Subscribe(id uuid.UUID) (<-chan Event, func(), error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Event, 64)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		delete(e.subs, ch)
		e.mu.Unlock()
	}, nil
}

// List returns all known jobs, newest first.
func (s *Service) List() ([]*Status, error) {
	if s.store != nil {
		jobs, err := s.store.List()
		if err != nil {
			return nil, err
		}
		out := make([]*Status, 0, len(jobs))
		for _, j := range jobs {
			st, err := s.Status(j.ID)
			if err != nil {
				continue
			}
			out = append(out, st)
		}
		return out, nil
	}

	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var out []*Status
	for _, id := range ids {
		if st, err := s.Status(id); err == nil {
			out = append(out, st)
		}
	}
	return out, nil
}

// StartRetentionSweeper deletes expired terminal jobs once a day until
// ctx is cancelled.
func (s *Service) StartRetentionSweeper(ctx context.Context) {
	if s.store == nil || s.cfg.JobRetentionDays <= 0 {
		return
	}
	retention := time.Duration(s.cfg.JobRetentionDays) * 24 * time.Hour
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			if _, err := s.store.Sweep(retention); err != nil {
				s.log.Warn("retention sweep", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
