package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Run repository sentinels.
	ErrRunNotFound   = errors.New("run not found")
	ErrRunIDRequired = errors.New("run_id is required")

	// Data file repository sentinels.
	ErrDataFileNotFound = errors.New("data file not found")
)
