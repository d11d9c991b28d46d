package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
)

// Job states
const (
	JobRunning   = "running"
	JobPaused    = "paused"
	JobStopping  = "stopping"
	JobStopped   = "stopped"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

var (
	ErrJobActive   = errors.New("a sync job is already active for this event")
	ErrJobFinished = errors.New("the sync job has already finished")
	ErrJobNotFound = errors.New("no sync job for this event")
)

// Syncer counts and syncs the endlist of an event chunk by chunk.
type Syncer interface {
	Count(ctx context.Context, eventID, chunkSize int) (CountResult, error)
	SyncChunk(ctx context.Context, eventID, chunkSize, offset int) (ChunkResult, error)
}

type JobStatus struct {
	ID           string       `json:"id"`
	EventID      int          `json:"eventId"`
	State        string       `json:"state"`
	ChunkSize    int          `json:"chunkSize"`
	TotalTeams   int          `json:"totalTeams"`
	TotalChunks  int          `json:"totalChunks"`
	CurrentChunk int          `json:"currentChunk"`
	Progress     int          `json:"progress"`
	Metrics      ChunkMetrics `json:"syncResults"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   *time.Time   `json:"finishedAt"`
}

func (s JobStatus) Finished() bool {
	switch s.State {
	case JobStopped, JobCompleted, JobFailed:
		return true
	}
	return false
}

type job struct {
	mu       sync.Mutex
	status   JobStatus
	stopCh   chan struct{} // closed on stop
	resumeCh chan struct{} // closed on resume, renewed on pause
	done     chan struct{}
}

func (j *job) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.status
	st.Metrics.Errors = append([]string{}, j.status.Metrics.Errors...)
	return st
}

func (j *job) finish(state string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UTC()
	j.status.State = state
	j.status.FinishedAt = &now
	if err != nil {
		j.status.Error = err.Error()
	}
	if state == JobCompleted {
		j.status.Progress = 100
	}
}

// waitTurn blocks while the job is paused. It returns false when the job must stop.
func (j *job) waitTurn(ctx context.Context) bool {
	for {
		j.mu.Lock()
		state, resumeCh := j.status.State, j.resumeCh
		j.mu.Unlock()

		switch state {
		case JobRunning:
			return true
		case JobPaused:
			select {
			case <-resumeCh:
			case <-j.stopCh:
				return false
			case <-ctx.Done():
				return false
			}
		default:
			return false
		}
	}
}

func (j *job) recordChunk(n int, res ChunkResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	prefix := fmt.Sprintf("Chunk %d: ", n)
	j.status.Metrics.Add(res.Metrics, prefix)
	if err != nil {
		j.status.Metrics.addError(prefix + errors.Cause(err).Error())
	}
	j.status.CurrentChunk = n
	if j.status.TotalChunks > 0 {
		j.status.Progress = n * 100 / j.status.TotalChunks
	}
}

// JobRunner runs at most one sync job per event in the background.
type JobRunner struct {
	syncer Syncer
	delay  time.Duration
	logger core.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[int]*job
}

func NewJobRunner(syncer Syncer, conf *core.Config, logger core.Logger) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		syncer: syncer,
		delay:  conf.Attendance.ChunkDelay,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[int]*job),
	}
}

// Start launches a sync job for the event. It fails with ErrJobActive when one is running, paused or stopping.
func (r *JobRunner) Start(eventID, chunkSize int) (JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[eventID]; ok {
		if st := j.snapshot(); !st.Finished() {
			return st, ErrJobActive
		}
	}
	if err := r.ctx.Err(); err != nil {
		return JobStatus{}, core.NewShutdownError("job runner closed")
	}

	j := &job{
		status: JobStatus{
			ID:        uuid.NewString(),
			EventID:   eventID,
			State:     JobRunning,
			ChunkSize: chunkSize,
			Metrics:   ChunkMetrics{Errors: []string{}},
			StartedAt: time.Now().UTC(),
		},
		stopCh:   make(chan struct{}),
		resumeCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.jobs[eventID] = j

	r.wg.Add(1)
	go r.run(j)
	return j.snapshot(), nil
}

func (r *JobRunner) run(j *job) {
	defer r.wg.Done()
	defer close(j.done)

	eventID, chunkSize := j.status.EventID, j.status.ChunkSize
	count, err := r.syncer.Count(r.ctx, eventID, chunkSize)
	if err != nil {
		r.logger.Error(fmt.Sprintf("counting endlist of event %d: %v", eventID, err), err)
		j.finish(JobFailed, err)
		return
	}

	j.mu.Lock()
	j.status.ChunkSize = count.ChunkSize
	j.status.TotalTeams = count.TotalTeams
	j.status.TotalChunks = count.TotalChunks
	j.mu.Unlock()

	for i := 0; i < count.TotalChunks; i++ {
		if i > 0 && !r.sleep(j) {
			j.finish(JobStopped, nil)
			return
		}
		if !j.waitTurn(r.ctx) {
			j.finish(JobStopped, nil)
			return
		}

		res, err := r.syncer.SyncChunk(r.ctx, eventID, count.ChunkSize, i*count.ChunkSize)
		if err != nil {
			r.logger.Error(fmt.Sprintf("syncing chunk %d of event %d: %v", i+1, eventID, err), err)
		}
		j.recordChunk(i+1, res, err)
	}

	if j.snapshot().State == JobStopping {
		j.finish(JobStopped, nil)
		return
	}
	j.finish(JobCompleted, nil)
}

// sleep waits the delay between chunks. It returns false when the job was stopped meanwhile.
func (r *JobRunner) sleep(j *job) bool {
	if r.delay <= 0 {
		return true
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-j.stopCh:
		return false
	case <-r.ctx.Done():
		return false
	}
}

func (r *JobRunner) get(eventID int) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[eventID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

func (r *JobRunner) Status(eventID int) (JobStatus, error) {
	j, err := r.get(eventID)
	if err != nil {
		return JobStatus{}, err
	}
	return j.snapshot(), nil
}

// Pause holds the job before its next chunk.
func (r *JobRunner) Pause(eventID int) (JobStatus, error) {
	return r.transition(eventID, func(j *job) error {
		switch j.status.State {
		case JobRunning:
			j.status.State = JobPaused
			j.resumeCh = make(chan struct{})
		case JobPaused, JobStopping:
		default:
			return ErrJobFinished
		}
		return nil
	})
}

func (r *JobRunner) Resume(eventID int) (JobStatus, error) {
	return r.transition(eventID, func(j *job) error {
		switch j.status.State {
		case JobPaused:
			j.status.State = JobRunning
			close(j.resumeCh)
		case JobRunning, JobStopping:
		default:
			return ErrJobFinished
		}
		return nil
	})
}

// Stop ends the job after its in-flight chunk.
func (r *JobRunner) Stop(eventID int) (JobStatus, error) {
	return r.transition(eventID, stopJob)
}

func stopJob(j *job) error {
	switch j.status.State {
	case JobRunning, JobPaused:
		j.status.State = JobStopping
		close(j.stopCh)
	case JobStopping:
	default:
		return ErrJobFinished
	}
	return nil
}

func (r *JobRunner) transition(eventID int, fn func(j *job) error) (JobStatus, error) {
	j, err := r.get(eventID)
	if err != nil {
		return JobStatus{}, err
	}
	j.mu.Lock()
	err = fn(j)
	j.mu.Unlock()
	return j.snapshot(), err
}

// Wait blocks until the event's job finishes or ctx is done.
func (r *JobRunner) Wait(ctx context.Context, eventID int) (JobStatus, error) {
	j, err := r.get(eventID)
	if err != nil {
		return JobStatus{}, err
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// StopAll stops every active job and waits for them to return. In-flight chunks are cancelled when ctx is done first.
func (r *JobRunner) StopAll(ctx context.Context) error {
	r.mu.Lock()
	for _, j := range r.jobs {
		j.mu.Lock()
		_ = stopJob(j)
		j.mu.Unlock()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
