package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobState is the lifecycle state of an asynchronous batch job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

const defaultJobRetention = time.Hour

// ProgressEvent is published to job subscribers as records complete and
// once more when the job reaches a terminal state.
type ProgressEvent struct {
	JobID     string   `json:"job_id"`
	State     JobState `json:"state"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
}

// JobSnapshot is a point-in-time view of a job, shaped for the API.
type JobSnapshot struct {
	JobID       string     `json:"job_id"`
	State       JobState   `json:"state"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

type job struct {
	mu          sync.Mutex
	id          string
	state       JobState
	total       int
	completed   int
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	errText     string
	result      *Result
	subscribers []chan ProgressEvent
}

func (j *job) snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := JobSnapshot{
		JobID:       j.id,
		State:       j.state,
		Total:       j.total,
		Completed:   j.completed,
		SubmittedAt: j.submittedAt,
		Error:       j.errText,
	}
	if !j.startedAt.IsZero() {
		started := j.startedAt
		snap.StartedAt = &started
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		snap.FinishedAt = &finished
	}
	if j.state == JobCompleted || j.state == JobFailed {
		snap.Result = j.result
	}
	return snap
}

// publish sends an event to every subscriber without blocking; slow
// subscribers miss intermediate events and catch up on the next one.
func (j *job) publish(event ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ch := range j.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (j *job) setProgress(completed int) ProgressEvent {
	j.mu.Lock()
	j.completed = completed
	event := ProgressEvent{JobID: j.id, State: j.state, Completed: completed, Total: j.total}
	j.mu.Unlock()
	return event
}

func (j *job) start() {
	j.mu.Lock()
	j.state = JobRunning
	j.startedAt = time.Now().UTC()
	j.mu.Unlock()
}

// finish moves the job to a terminal state, emits the final event and
// closes every subscriber channel.
func (j *job) finish(state JobState, result *Result, errText string) {
	j.mu.Lock()
	j.state = state
	j.result = result
	j.errText = errText
	j.finishedAt = time.Now().UTC()
	if result != nil {
		j.completed = len(result.Outcomes)
	}

	event := ProgressEvent{JobID: j.id, State: state, Completed: j.completed, Total: j.total}
	for _, ch := range j.subscribers {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
	j.subscribers = nil
	j.mu.Unlock()
}

func (j *job) subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	j.mu.Lock()
	if j.state == JobCompleted || j.state == JobFailed {
		ch <- ProgressEvent{JobID: j.id, State: j.state, Completed: j.completed, Total: j.total}
		close(ch)
		j.mu.Unlock()
		return ch, func() {}
	}
	j.subscribers = append(j.subscribers, ch)
	j.mu.Unlock()

	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, sub := range j.subscribers {
			if sub == ch {
				j.subscribers = append(j.subscribers[:i], j.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Manager tracks asynchronous batch jobs submitted through the API.
// Finished jobs are retained for a bounded window so clients can poll
// results after completion.
type Manager struct {
	logger    *logrus.Logger
	processor *Processor
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*job
}

// NewManager creates a job manager backed by the given processor.
func NewManager(logger *logrus.Logger, processor *Processor) *Manager {
	return &Manager{
		logger:    logger,
		processor: processor,
		retention: defaultJobRetention,
		jobs:      make(map[string]*job),
	}
}

// Start registers a new job for the given records and runs it on a
// background goroutine. The returned snapshot carries the job ID for
// polling. The job stops early if ctx is canceled.
func (m *Manager) Start(ctx context.Context, records []Record) JobSnapshot {
	j := &job{
		id:          uuid.NewString(),
		state:       JobPending,
		total:       len(records),
		submittedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.evictExpired()
	m.jobs[j.id] = j
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"job_id":  j.id,
		"records": len(records),
	}).Info("Batch job submitted")

	go m.run(ctx, j, records)
	return j.snapshot()
}

func (m *Manager) run(ctx context.Context, j *job, records []Record) {
	j.start()

	result, err := m.processor.Process(ctx, records, func(completed, total int) {
		j.publish(j.setProgress(completed))
	})
	if err != nil {
		j.finish(JobFailed, result, err.Error())
		m.logger.WithFields(logrus.Fields{
			"job_id": j.id,
			"error":  err.Error(),
		}).Warn("Batch job failed")
		return
	}

	j.finish(JobCompleted, result, "")
	m.logger.WithFields(logrus.Fields{
		"job_id":    j.id,
		"processed": result.Processed,
		"errors":    result.Errors,
	}).Info("Batch job completed")
}

// Get returns a snapshot of the job with the given ID.
func (m *Manager) Get(id string) (JobSnapshot, bool) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return j.snapshot(), true
}

// Subscribe returns a channel of progress events for the job plus a
// cancel function. The channel closes when the job finishes or the
// subscription is canceled. For already finished jobs the channel
// yields one terminal event and closes.
func (m *Manager) Subscribe(id string) (<-chan ProgressEvent, func(), bool) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	ch, cancel := j.subscribe()
	return ch, cancel, true
}

// evictExpired drops finished jobs older than the retention window.
// Callers must hold m.mu.
func (m *Manager) evictExpired() {
	cutoff := time.Now().UTC().Add(-m.retention)
	for id, j := range m.jobs {
		j.mu.Lock()
		expired := (j.state == JobCompleted || j.state == JobFailed) && j.finishedAt.Before(cutoff)
		j.mu.Unlock()
		if expired {
			delete(m.jobs, id)
		}
	}
}
