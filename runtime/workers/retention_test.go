package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/mocks"
)

func TestRetentionWorker_PrunesAtStartAndOnPeriod(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIRoomRepository(ctrl)

	maxIdle := 7 * 24 * time.Hour
	pruned := make(chan struct{}, 8)
	repository.EXPECT().
		PruneIdleRooms(maxIdle).
		DoAndReturn(func(time.Duration) (int, error) {
			pruned <- struct{}{}
			return 1, nil
		}).
		MinTimes(2)

	worker := NewRetentionWorker(repository, slog.Default(), maxIdle, 20*time.Millisecond)
	req.Equal("retention", worker.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// One prune at startup, then one per tick
	<-pruned
	<-pruned
	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker should stop on cancel")
	}
}

func TestRetentionWorker_SurvivesPruneFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIRoomRepository(ctrl)

	pruned := make(chan struct{}, 8)
	repository.EXPECT().
		PruneIdleRooms(gomock.Any()).
		DoAndReturn(func(time.Duration) (int, error) {
			pruned <- struct{}{}
			return 0, context.DeadlineExceeded
		}).
		MinTimes(2)

	worker := NewRetentionWorker(repository, slog.Default(), time.Hour, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// A failing prune is logged and the loop keeps ticking
	<-pruned
	<-pruned
	cancel()
	req.NoError(<-done)
}
