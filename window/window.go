// Package window implements the live-window fanout (component W in
// spec.md §4.5): bounded per-consumer queues fed by every applied edit
// batch, with fail-fast drop of consumers that fall behind. Ported from
// layer.py's self.windows list and getNodeEditWindow scoped acquisition.
package window

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerwatch/graphlayer/bitmapdb"
)

const defaultCapacity = 10000

// Batch is one applied node-edit batch as pushed to every live consumer.
type Batch struct {
	Offs    uint64
	Changes interface{}
}

// Queue is a single consumer's bounded channel. Call Close (or cancel the
// context Acquire was called with) to unregister.
type Queue struct {
	id uint32
	ch chan Batch
	w  *Fanout
}

// Recv returns the channel to range over.
func (q *Queue) Recv() <-chan Batch { return q.ch }

// Close unregisters the queue from its Fanout. Safe to call more than once.
func (q *Queue) Close() {
	q.w.release(q.id)
}

// Fanout is the set of all currently-registered live-window consumers.
type Fanout struct {
	capacity int

	mu       sync.Mutex
	consumer map[uint32]chan Batch
	ids      *bitmapdb.Set
	nextID   uint32

	dropped *prometheus.CounterVec // optional; set via SetDropCounter
}

// SetDropCounter wires a counter, keyed by consumer id, that Push increments
// whenever it drops a slow consumer. Not required; Push is a no-op on the
// metric when this hasn't been called.
func (f *Fanout) SetDropCounter(c *prometheus.CounterVec) {
	f.mu.Lock()
	f.dropped = c
	f.mu.Unlock()
}

// New builds a Fanout with the default queue capacity (10,000), matching
// spec.md §4.5.
func New() *Fanout {
	return NewWithCapacity(defaultCapacity)
}

// NewWithCapacity builds a Fanout whose per-consumer queues hold capacity
// batches before a slow consumer is dropped, for callers that size it from
// config.Config.WindowCapacity instead of the default.
func NewWithCapacity(capacity int) *Fanout {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Fanout{capacity: capacity, consumer: make(map[uint32]chan Batch), ids: bitmapdb.New()}
}

// Acquire registers a new bounded queue and returns it. The caller must
// Close it when done (typically via defer), mirroring
// getNodeEditWindow's scope-exit unregistration.
func (f *Fanout) Acquire(ctx context.Context) *Queue {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan Batch, f.capacity)
	f.consumer[id] = ch
	f.ids.Add(id)
	f.mu.Unlock()

	q := &Queue{id: id, ch: ch, w: f}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			q.Close()
		}()
	}

	return q
}

func (f *Fanout) release(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.consumer[id]; ok {
		delete(f.consumer, id)
		f.ids.Remove(id)
		close(ch)
	}
}

// Push fans batch out to every registered queue. A full queue means a slow
// consumer; rather than block the writer, that consumer is dropped
// (fail-fast), exactly as spec.md §4.5 requires.
func (f *Fanout) Push(b Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.consumer {
		select {
		case ch <- b:
		default:
			delete(f.consumer, id)
			f.ids.Remove(id)
			close(ch)
			if f.dropped != nil {
				f.dropped.WithLabelValues(strconv.Itoa(int(id))).Inc()
			}
		}
	}
}

// Len returns the number of currently registered consumers.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.consumer)
}
