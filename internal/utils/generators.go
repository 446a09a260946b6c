package utils

import "github.com/google/uuid"

// RequestID returns a fresh id for request tracing.
func RequestID() string {
	return uuid.NewString()
}
