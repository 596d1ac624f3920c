package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique local job ID with the "job_" prefix.
// Local IDs correlate UI elements to jobs before the server ID is known.
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBatchID generates a unique batch ID with the "batch_" prefix
// Format: batch_<uuid>
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}
