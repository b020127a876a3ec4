package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func start(t *testing.T, size int) (*Sequencer, context.CancelFunc) {
	t.Helper()
	seq := New(size, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-seq.Stopped()
	})
	return seq, cancel
}

func TestDoSerialisesJobs(t *testing.T) {
	seq, _ := start(t, 8)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, seq.Do(context.Background(), func() error {
				current := counter
				time.Sleep(10 * time.Microsecond)
				counter = current + 1
				return nil
			}))
		}()
	}
	wg.Wait()
	require.Equal(t, 100, counter)
}

func TestDoReturnsJobError(t *testing.T) {
	seq, _ := start(t, 1)
	boom := errors.New("boom")
	require.ErrorIs(t, seq.Do(context.Background(), func() error { return boom }), boom)
}

func TestDoRecoversPanics(t *testing.T) {
	seq, _ := start(t, 1)
	err := seq.Do(context.Background(), func() error { panic("bad") })
	require.ErrorContains(t, err, "panic")

	require.NoError(t, seq.Do(context.Background(), func() error { return nil }))
}

func TestDoAfterStop(t *testing.T) {
	seq, cancel := start(t, 1)
	cancel()
	<-seq.Stopped()
	require.ErrorIs(t, seq.Do(context.Background(), func() error { return nil }), ErrStopped)
}

func TestDoHonoursContextWhileQueueFull(t *testing.T) {
	seq := New(1, nil)
	// Not running: the first job fills the inbox and the second must time out.
	go func() { _ = seq.Do(context.Background(), func() error { return nil }) }()
	require.Eventually(t, func() bool { return len(seq.inbox) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := seq.Do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
