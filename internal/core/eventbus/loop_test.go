package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc, <-chan error) {
	t.Helper()
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	return loop, cancel, done
}

func TestLoopRunsTasksSerially(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	loop, cancel, done := startLoop(t)

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		total   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := loop.Do(context.Background(), func() {
				active++
				if active > maxSeen {
					maxSeen = active
				}
				time.Sleep(time.Millisecond)
				total++
				active--
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 20, total)

	cancel()
	require.NoError(t, <-done)
}

func TestLoopRecoversTaskPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	loop, cancel, done := startLoop(t)
	defer func() {
		cancel()
		<-done
	}()

	err := loop.Do(context.Background(), func() { panic("bad task") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")

	ran := false
	require.NoError(t, loop.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopDoAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	loop, cancel, done := startLoop(t)
	require.NoError(t, loop.Do(context.Background(), func() {}))

	cancel()
	require.NoError(t, <-done)
	assert.False(t, loop.Running())

	err := loop.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrLoopStopped)
	assert.ErrorIs(t, loop.Run(context.Background()), ErrLoopStopped)
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Цикл не запущен: задача встает в очередь, ожидание прерывается контекстом
	err := loop.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
