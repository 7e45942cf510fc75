package memory

import "errors"

// ErrInferenceUnavailable is returned when the inference backend cannot
// produce a memory. Messages stay stored; memory creation is retried later.
var ErrInferenceUnavailable = errors.New("inference unavailable")

// ErrNotConfigured is returned when memory operations are attempted
// but no inferer has been configured.
var ErrNotConfigured = errors.New("memory not configured")
