package repository

import "errors"

// Sentinel errors for assessment storage.
var (
	ErrNotFound     = errors.New("assessment not found")
	ErrExists       = errors.New("assessment already exists")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrClosed       = errors.New("store closed")
)
