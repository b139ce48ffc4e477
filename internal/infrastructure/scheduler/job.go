package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrJobQueueFull        = errors.New("job queue is full")
	// ErrJobAlreadyQueued means the shop already has a sync pending or running
	ErrJobAlreadyQueued = errors.New("feed sync already queued for this shop")
	ErrInvalidSchedule  = errors.New("invalid feed sync schedule")
)

type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job re-ingests the price list a shop publishes at FeedURL
type Job struct {
	ID          uuid.UUID
	PartnerID   uuid.UUID
	FeedURL     string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

func NewJob(partnerID uuid.UUID, feedURL string, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		PartnerID:  partnerID,
		FeedURL:    feedURL,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

func (j *Job) Start() {
	now := time.Now()
	j.Status, j.StartedAt, j.Error = JobStatusRunning, &now, ""
}

func (j *Job) Complete() {
	now := time.Now()
	j.Status, j.CompletedAt = JobStatusSuccess, &now
}

func (j *Job) Fail(reason string) {
	now := time.Now()
	j.Status, j.CompletedAt, j.Error = JobStatusFailed, &now, reason
}

// ShouldRetry reports whether the failure err deserves another attempt.
// Only a busy shop lock clears up by itself; a broken document does not.
func (j *Job) ShouldRetry(err error) bool {
	if j.Status != JobStatusFailed || j.RetryCount >= j.MaxRetries {
		return false
	}
	return shared.IsKind(err, shared.KindResourceBusy)
}

// ScheduleRetry puts the job back to pending and counts the attempt
func (j *Job) ScheduleRetry() {
	j.RetryCount++
	j.Status, j.Error = JobStatusPending, ""
}

// JobExecutor performs the sync a job describes
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}
