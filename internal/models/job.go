package models

import (
	"fmt"
	"time"
)

// JobStatus represents the stage a sort job has reached.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusUploading JobStatus = "uploading"
	JobStatusInvoking  JobStatus = "invoking"
	JobStatusPolling   JobStatus = "polling"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
)

// jobStatusOrder gives each status its position in the pipeline.
var jobStatusOrder = map[JobStatus]int{
	JobStatusIdle:      0,
	JobStatusUploading: 1,
	JobStatusInvoking:  2,
	JobStatusPolling:   3,
	JobStatusDone:      4,
	JobStatusFailed:    4,
}

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job describes one run of a file through upload, remote sort and retrieval.
// A Job is never reused across files.
type Job struct {
	ID           string     `json:"id"`
	FileName     string     `json:"fileName"`
	InputBucket  string     `json:"inputBucket"`
	InputKey     string     `json:"inputKey"`
	OutputBucket string     `json:"outputBucket"`
	OutputKey    string     `json:"outputKey"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"` // 0-100
	Attempts     int        `json:"attempts,omitempty"`
	ErrorKind    string     `json:"errorKind,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewJob creates a job in the idle state.
func NewJob(id, fileName string, now time.Time) *Job {
	return &Job{
		ID:        id,
		FileName:  fileName,
		Status:    JobStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job one stage forward. Skipping a stage, going back or
// leaving a terminal state is rejected; any live stage may fail.
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s already %s", j.ID, j.Status)
	}
	if to != JobStatusFailed && jobStatusOrder[to] != jobStatusOrder[j.Status]+1 {
		return fmt.Errorf("job %s cannot move from %s to %s", j.ID, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	if to.Terminal() {
		j.CompletedAt = &now
	}
	return nil
}

// Clone returns a copy that is safe to hand out.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
