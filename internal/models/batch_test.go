package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch(t *testing.T) {
	batch := NewBatch("filing packet", []string{"job_1", "job_2"})

	require.NotEmpty(t, batch.ID)
	assert.Equal(t, "filing packet", batch.Name)
	assert.Equal(t, []string{"job_1", "job_2"}, batch.JobIDs)
	assert.NoError(t, batch.Validate())
}

func TestBatchRemoveJobPreservesOrder(t *testing.T) {
	batch := NewBatch("packet", []string{"job_1", "job_2", "job_3"})

	assert.True(t, batch.RemoveJob("job_2"))
	assert.Equal(t, []string{"job_1", "job_3"}, batch.JobIDs)

	assert.False(t, batch.RemoveJob("job_missing"))
	assert.Equal(t, []string{"job_1", "job_3"}, batch.JobIDs)
}

func TestBatchCloneIsIndependent(t *testing.T) {
	batch := NewBatch("packet", []string{"job_1", "job_2"})

	clone := batch.Clone()
	clone.RemoveJob("job_1")

	assert.Equal(t, []string{"job_1", "job_2"}, batch.JobIDs)
	assert.Equal(t, []string{"job_2"}, clone.JobIDs)
}

func TestBatchValidate(t *testing.T) {
	batch := NewBatch("packet", nil)
	assert.Error(t, batch.Validate(), "a batch without members is invalid")

	batch.JobIDs = []string{"job_1"}
	assert.NoError(t, batch.Validate())

	batch.ID = ""
	assert.Error(t, batch.Validate())
}
