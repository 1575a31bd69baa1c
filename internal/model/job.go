package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobState is the user-facing terminal or in-flight state of a job.
type JobState string

const (
	JobPending               JobState = "pending"
	JobRunning               JobState = "running"
	JobCompleted             JobState = "completed"
	JobCompletedWithWarnings JobState = "completed_with_warnings"
	JobCancelled             JobState = "cancelled"
	JobFailed                JobState = "failed"
)

// QualitySignal records a degradation, skip or per-item failure surfaced to
// the caller instead of failing the job.
type QualitySignal struct {
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
}

// StageTiming is the wall-clock duration of one pipeline stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// ActivityEntry is one line of the human-readable job activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	Message   string    `json:"msg"`
}

// AreaOfLaw is one post-pipeline area-of-law classification.
type AreaOfLaw struct {
	Area       string  `json:"area"`
	Confidence float64 `json:"confidence"`
}

// JobResult is the envelope owning every annotation, individual, property
// and triple produced for one document.
type JobResult struct {
	TextSHA256     string                `json:"text_sha256"`
	Annotations    []*ConceptMatch       `json:"annotations"`
	Individuals    []*Individual         `json:"individuals"`
	Properties     []*PropertyAnnotation `json:"properties"`
	Triples        []Triple              `json:"triples"`
	Metadata       *DocumentMetadata     `json:"metadata,omitempty"`
	DocumentType   string                `json:"document_type,omitempty"`
	AreasOfLaw     []AreaOfLaw           `json:"areas_of_law,omitempty"`
	QualitySignals []QualitySignal       `json:"quality_signals,omitempty"`
	Timings        []StageTiming         `json:"timings,omitempty"`
	ActivityLog    []ActivityEntry       `json:"activity_log,omitempty"`
	Config         Config                `json:"effective_config"`
	Incomplete     bool                  `json:"incomplete,omitempty"`
}

// Annotation returns the concept annotation with the given id, or nil.
func (r *JobResult) Annotation(id string) *ConceptMatch {
	for _, a := range r.Annotations {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// AddQualitySignal appends a degradation signal.
func (r *JobResult) AddQualitySignal(stage, reason string) {
	r.QualitySignals = append(r.QualitySignals, QualitySignal{Stage: stage, Reason: reason})
}

// LogActivity appends a line to the activity log.
func (r *JobResult) LogActivity(stage, msg string) {
	r.ActivityLog = append(r.ActivityLog, ActivityEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Message:   msg,
	})
}

// Clone returns a deep copy of the result, detached from any goroutine
// still writing the original. Used for partial-result snapshots and event
// payloads.
func (r *JobResult) Clone() *JobResult {
	data, err := json.Marshal(r)
	if err != nil {
		return &JobResult{}
	}
	out := &JobResult{}
	if err := json.Unmarshal(data, out); err != nil {
		return &JobResult{}
	}
	return out
}

// Canonicalize returns a copy with run-dependent identity stripped:
// generated ids replaced by positional ones (triple references rewritten
// to match), lineage and activity timestamps zeroed and stage durations
// dropped. Two runs over identical input and configuration canonicalize
// to the same JSON bytes.
func (r *JobResult) Canonicalize() *JobResult {
	out := r.Clone()

	zero := func(events []LineageEvent) {
		for i := range events {
			events[i].Timestamp = time.Time{}
		}
	}

	annIDs := make(map[string]string, len(out.Annotations))
	for i, m := range out.Annotations {
		id := fmt.Sprintf("ann-%04d", i)
		annIDs[m.ID] = id
		m.ID = id
		zero(m.Lineage)
	}
	for i, ind := range out.Individuals {
		ind.ID = fmt.Sprintf("ind-%04d", i)
		zero(ind.Lineage)
	}
	for i, p := range out.Properties {
		p.ID = fmt.Sprintf("prop-%04d", i)
		zero(p.Lineage)
	}
	for i := range out.Triples {
		if id, ok := annIDs[out.Triples[i].SubjectID]; ok {
			out.Triples[i].SubjectID = id
		}
		if id, ok := annIDs[out.Triples[i].ObjectID]; ok {
			out.Triples[i].ObjectID = id
		}
	}
	for i := range out.Timings {
		out.Timings[i].Duration = 0
	}
	for i := range out.ActivityLog {
		out.ActivityLog[i].Timestamp = time.Time{}
	}
	return out
}

// Job tracks one document through the pipeline.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	State        JobState   `json:"state"`
	CurrentStage string     `json:"current_stage,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Document     *Document  `json:"document,omitempty"`
	Result       *JobResult `json:"result"`
	Error        string     `json:"error,omitempty"`
}

// NewJob creates a pending job with an empty result envelope.
func NewJob() *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		State:     JobPending,
		CreatedAt: now,
		UpdatedAt: now,
		Result:    &JobResult{},
	}
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.State {
	case JobCompleted, JobCompletedWithWarnings, JobCancelled, JobFailed:
		return true
	}
	return false
}

// Touch bumps the updated-at timestamp.
func (j *Job) Touch() { j.UpdatedAt = time.Now().UTC() }
