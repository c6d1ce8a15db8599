// Package model contains domain models passed between layers.
package model

import "time"

// Status is the lifecycle state of an assessment.
type Status string

// Assessment statuses. Transitions only move forward:
// queued -> processing -> completed | failed.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed. A failed
// assessment may be queued again when its key is resubmitted; completed is
// final.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusQueued
	}
	return false
}

// Assessment is one submitted spoken answer and everything derived from it.
type Assessment struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"` // idempotency key
	Prompt      string    `json:"prompt"`
	Filename    string    `json:"filename"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
	Result      *Result   `json:"result,omitempty"`
}

// Job is the queue payload for one assessment.
type Job struct {
	AssessmentID string
	Key          string
	Prompt       string
	Filename     string
	Audio        []byte
	Submitted    time.Time
}
