package service

import (
	"errors"

	repository "github.com/okian/bandscore/internal/adapters/repository"
)

// Sentinel errors returned by the service.
var (
	ErrEmptyAudio        = errors.New("audio is empty")
	ErrBackpressure      = errors.New("assessment queue is full")
	ErrNotStarted        = errors.New("service not started")
	ErrNoProcessor       = errors.New("service has no processor")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = repository.ErrNotFound
)
