// Package pipeline moves settled files from the watcher to the
// transcription workers through a bounded queue, with the ledger as
// the exactly-once gate.
package pipeline

import (
	"sync"

	"github.com/voxtail/voxtail/internal/watch"
)

// Queue is a bounded FIFO of settled files. When full, Enqueue blocks
// the caller; that backpressure stalls the settler's emit path rather
// than dropping work or growing without bound.
type Queue struct {
	ch chan watch.SettledFile

	mu        sync.Mutex
	closed    bool
	producers sync.WaitGroup
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan watch.SettledFile, size)}
}

// Enqueue adds a file, blocking while the queue is full. Returns false
// once the queue has been closed. A producer already blocked when
// Close is called still completes its hand-off; Close waits for it.
func (q *Queue) Enqueue(f watch.SettledFile) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.producers.Add(1)
	q.mu.Unlock()

	q.ch <- f
	q.producers.Done()
	return true
}

// Chan exposes the consumer side for the worker pool.
func (q *Queue) Chan() <-chan watch.SettledFile {
	return q.ch
}

// Close stops accepting new work, waits for in-flight producers to
// finish their sends, then closes the channel so consumers drain and
// exit. Consumers must keep draining until Close returns or a blocked
// producer would never hand off.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.producers.Wait()
	close(q.ch)
}

// Len reports how many files are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
