package config

import "errors"

// Load wraps ErrLoadConfig when the file or environment cannot be read, and
// ErrInvalidConfig when the merged defaults, file and BANDSCORE_ variables
// fail Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
