// Package types contains the response views shared by the API and the client.
package types

import (
	"errors"
	"strings"
	"time"

	"github.com/okian/bandscore/internal/domain/model"
)

// ErrInvalidDetail is returned for an unknown detail level.
var ErrInvalidDetail = errors.New("invalid detail level")

// DetailLevel controls how much of an assessment a response carries.
type DetailLevel string

// Detail levels, from least to most verbose.
const (
	DetailDefault  DetailLevel = "default"
	DetailFeedback DetailLevel = "feedback"
	DetailFull     DetailLevel = "full"
)

// ParseDetail parses s into a DetailLevel. Empty input means DetailDefault.
func ParseDetail(s string) (DetailLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DetailDefault):
		return DetailDefault, nil
	case string(DetailFeedback):
		return DetailFeedback, nil
	case string(DetailFull):
		return DetailFull, nil
	}
	return "", ErrInvalidDetail
}

// AssessmentView is the JSON shape of an assessment at a given detail level.
type AssessmentView struct {
	ID          string             `json:"id"`
	Status      model.Status       `json:"status"`
	Prompt      string             `json:"prompt,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
	BandScores  *model.BandScores  `json:"band_scores,omitempty"`
	Metrics     *model.Metrics     `json:"metrics,omitempty"`
	Feedback    *model.Feedback    `json:"feedback,omitempty"`
	Transcript  *model.Transcript  `json:"transcript,omitempty"`
	Annotations []model.Annotation `json:"annotations,omitempty"`
	Timings     model.Timings      `json:"timings,omitempty"`
	Scorer      string             `json:"scorer,omitempty"`
}

// View renders a at the requested detail level. Result fields are only
// present once the assessment has completed.
func View(a model.Assessment, level DetailLevel) AssessmentView {
	v := AssessmentView{
		ID:        a.ID,
		Status:    a.Status,
		Prompt:    a.Prompt,
		CreatedAt: a.CreatedAt,
		Error:     a.Error,
	}
	if !a.CompletedAt.IsZero() {
		t := a.CompletedAt
		v.CompletedAt = &t
	}
	if a.Status != model.StatusCompleted || a.Result == nil {
		return v
	}

	r := a.Result
	bands := r.Bands
	metrics := r.Metrics
	v.BandScores = &bands
	v.Metrics = &metrics

	if level == DetailFeedback || level == DetailFull {
		fb := r.Feedback
		v.Feedback = &fb
	}
	if level == DetailFull {
		tr := r.Transcript
		v.Transcript = &tr
		v.Annotations = r.Annotations
		if v.Annotations == nil {
			v.Annotations = []model.Annotation{}
		}
		v.Timings = r.Timings
		v.Scorer = r.Scorer
	}
	return v
}

// SubmitResponse is returned when an assessment is accepted without waiting.
type SubmitResponse struct {
	ID        string       `json:"id"`
	Status    model.Status `json:"status"`
	Duplicate bool         `json:"duplicate"`
}

// ListResponse wraps a page of assessments.
type ListResponse struct {
	Assessments []AssessmentView `json:"assessments"`
	Count       int              `json:"count"`
	Total       int              `json:"total"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
