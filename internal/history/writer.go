package history

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// Saver is the slice of Store the writer needs.
type Saver interface {
	SaveRun(ctx context.Context, run Run, findings []Finding) (int64, error)
}

type job struct {
	run      Run
	findings []Finding
}

// AsyncWriter persists runs off the caller's goroutine through a
// buffered channel, so an interactive session never blocks on the disk.
type AsyncWriter struct {
	store Saver
	ch    chan job
	wg    sync.WaitGroup
	done  chan struct{}
}

func NewAsyncWriter(store Saver) *AsyncWriter {
	w := &AsyncWriter{
		store: store,
		ch:    make(chan job, defaultBufferSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Save queues a run for persistence. Non-blocking; returns false if the
// buffer is full or the writer is closed.
func (w *AsyncWriter) Save(run Run, findings []Finding) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.ch <- job{run: run, findings: findings}:
		return true
	default:
		return false
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.ch:
			// Best effort insert, ignore errors
			_, _ = w.store.SaveRun(context.Background(), j.run, j.findings)
		case <-w.done:
			// Drain remaining runs
			for {
				select {
				case j := <-w.ch:
					_, _ = w.store.SaveRun(context.Background(), j.run, j.findings)
				default:
					return
				}
			}
		}
	}
}

// Close gracefully shuts down the writer, draining the buffer.
func (w *AsyncWriter) Close() {
	close(w.done)
	w.wg.Wait()
}
