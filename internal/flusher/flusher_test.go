package flusher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
	err   error
}

func (s *countingStore) Flush() error {
	s.calls.Add(1)
	return s.err
}

func TestRunFlushesPeriodically(t *testing.T) {
	store := &countingStore{}
	f := New(store, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	f.Run(ctx)

	assert.Eventually(t, func() bool {
		return store.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop after cancel")
	}
}

func TestErrorsReachListener(t *testing.T) {
	flushErr := errors.New("disk full")
	store := &countingStore{err: flushErr}
	f := New(store, 5*time.Millisecond)

	var (
		mu       sync.Mutex
		received []error
	)
	f.ListenErrors(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, received[0], flushErr)
}

func TestNoFlushAfterCancel(t *testing.T) {
	store := &countingStore{}
	f := New(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	f.Run(ctx)
	cancel()
	<-f.Done()

	assert.Zero(t, store.calls.Load())
}
