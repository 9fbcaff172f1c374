package progress

import (
	"sync"
	"sync/atomic"
)

// Counter tracks captured frames across workers and emits a progress event on
// every increment. Events leave in increasing order even when workers race.
type Counter struct {
	mu    sync.Mutex
	done  atomic.Int64
	total int
	sink  Sink
}

func NewCounter(total int, sink Sink) *Counter {
	if sink == nil {
		sink = Discard
	}
	return &Counter{total: total, sink: sink}
}

// Add records n frames and returns the new total.
func (c *Counter) Add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	done := int(c.done.Add(int64(n)))
	c.sink.Emit(Progress(done, c.total))
	return done
}

func (c *Counter) Done() int {
	return int(c.done.Load())
}

func (c *Counter) Total() int {
	return c.total
}
