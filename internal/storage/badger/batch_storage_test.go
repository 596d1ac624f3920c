package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/models"
)

func TestSaveAndGetBatch(t *testing.T) {
	storage := NewBatchStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	batch := models.NewBatch("filing packet", []string{"job_1", "job_2"})
	require.NoError(t, storage.SaveBatch(ctx, batch))

	loaded, err := storage.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, loaded.ID)
	assert.Equal(t, "filing packet", loaded.Name)
	assert.Equal(t, []string{"job_1", "job_2"}, loaded.JobIDs)
}

func TestSaveBatchRequiresID(t *testing.T) {
	storage := NewBatchStorage(newTestDB(t), arbor.NewLogger())
	assert.Error(t, storage.SaveBatch(context.Background(), &models.Batch{}))
	assert.Error(t, storage.SaveBatch(context.Background(), nil))
}

func TestListBatches(t *testing.T) {
	storage := NewBatchStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, storage.SaveBatch(ctx, models.NewBatch(name, nil)))
	}

	all, err := storage.ListBatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := storage.ListBatches(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteBatchIsTolerant(t *testing.T) {
	storage := NewBatchStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	batch := models.NewBatch("packet", nil)
	require.NoError(t, storage.SaveBatch(ctx, batch))

	require.NoError(t, storage.DeleteBatch(ctx, batch.ID))
	_, err := storage.GetBatch(ctx, batch.ID)
	assert.Error(t, err)

	assert.NoError(t, storage.DeleteBatch(ctx, batch.ID))
}
