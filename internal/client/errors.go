package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned when a batch input contains no audio files.
	ErrNoFiles = errors.New("no audio files found")
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
)

// APIError is a non-2xx response decoded from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("bandscore: http %d", e.Status)
	}
	return fmt.Sprintf("bandscore: http %d %s: %s", e.Status, e.Code, e.Message)
}
