// Package flusher periodically persists a store that buffers its state in memory.
package flusher

import (
	"context"
	"time"

	"github.com/patric-chuzhbe/todolist/internal/logger"
)

type flushable interface {
	Flush() error
}

type Flusher struct {
	db           flushable
	interval     time.Duration
	errorChannel chan error
	done         chan struct{}
}

const errorChannelCapacity = 16

func New(db flushable, interval time.Duration) *Flusher {
	return &Flusher{
		db:           db,
		interval:     interval,
		errorChannel: make(chan error, errorChannelCapacity),
		done:         make(chan struct{}),
	}
}

// ListenErrors hands every failed flush to callback until the flusher stops.
func (f *Flusher) ListenErrors(callback func(error)) {
	go func() {
		for err := range f.errorChannel {
			callback(err)
		}
	}()
}

// Run starts the flush loop. It returns immediately; the loop ends when ctx is done.
func (f *Flusher) Run(ctx context.Context) {
	go func() {
		defer close(f.done)
		defer close(f.errorChannel)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.db.Flush(); err != nil {
					f.report(err)
					continue
				}
				logger.Log.Debugln("storage flushed")
			}
		}
	}()
}

// Done is closed once the loop has exited.
func (f *Flusher) Done() <-chan struct{} {
	return f.done
}

func (f *Flusher) report(err error) {
	select {
	case f.errorChannel <- err:
	default:
		logger.Log.Warnln("flush error dropped, listener is behind: ", err)
	}
}
