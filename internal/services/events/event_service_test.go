package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/interfaces"
)

func newTestService() interfaces.EventService {
	return NewService(arbor.NewLogger())
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	svc := newTestService()
	assert.Error(t, svc.Subscribe(interfaces.EventJobUpdated, nil))
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	svc := newTestService()

	var mu sync.Mutex
	received := 0

	handler := func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received++
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventJobTerminal, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobTerminal, handler))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobTerminal,
		Payload: "job_1",
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublishIgnoresUnsubscribedTypes(t *testing.T) {
	svc := newTestService()

	called := false
	require.NoError(t, svc.Subscribe(interfaces.EventBatchStarted, func(ctx context.Context, event interfaces.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventBatchComplete}))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, called)
}

func TestPublishSyncReturnsFirstError(t *testing.T) {
	svc := newTestService()

	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("handler one failed")
	}))
	secondCalled := false
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		secondCalled = true
		return fmt.Errorf("handler two failed")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler one failed")
	assert.True(t, secondCalled, "one failing handler must not block the others")
}

func TestPanickingHandlerDoesNotKillPublisher(t *testing.T) {
	svc := newTestService()

	var mu sync.Mutex
	survived := false

	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		panic("handler exploded")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		survived = true
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return survived
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCloseDropsSubscriptions(t *testing.T) {
	svc := newTestService()

	called := false
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, svc.Close())

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated}))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called)

	assert.Error(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error { return nil }))
}
