package notify

import "errors"

// Sentinel errors for publishers.
var (
	ErrMissingURL     = errors.New("notify: nats url is required")
	ErrMissingSubject = errors.New("notify: subject is required")
	ErrClosed         = errors.New("notify: publisher closed")
)
