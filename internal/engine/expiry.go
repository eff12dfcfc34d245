package engine

import (
	"container/heap"
	"sync"
	"time"
)

// expiryEntry is a (when, key, stripe index) triple placed in the
// scheduler's min-heap. Multiple entries for the same key may coexist
// after an overwrite; stale ones are filtered out at pop time rather
// than hunted down and removed when the overwrite happens.
type expiryEntry struct {
	when      time.Time
	key       string
	stripeIdx int
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduler is the background expiry worker: a min-heap keyed by
// absolute expiry instant, guarded by a mutex paired with a condition
// variable. It never holds its own mutex while acquiring a stripe's
// mutex — that ordering is what prevents deadlock with readers/writers.
type scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     expiryHeap
	stopped  bool
	wg       sync.WaitGroup
	idleWait time.Duration

	// remove is called with the scheduler mutex NOT held; it re-reads
	// the key under its own stripe lock and deletes it only if it is
	// still expired.
	remove func(stripeIdx int, key string, now time.Time)
}

// newScheduler starts the background worker. idleWait bounds how long
// it can sleep with an empty heap, which in turn bounds shutdown
// latency even when no work ever arrives; idleWait <= 0 falls back to
// one second.
func newScheduler(remove func(int, string, time.Time), idleWait time.Duration) *scheduler {
	if idleWait <= 0 {
		idleWait = time.Second
	}
	s := &scheduler{remove: remove, idleWait: idleWait}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.run()
	return s
}

// schedule enqueues an expiry entry and wakes the worker so it can
// reconsider its wait deadline.
func (s *scheduler) schedule(stripeIdx int, key string, when time.Time) {
	s.mu.Lock()
	heap.Push(&s.heap, expiryEntry{when: when, key: key, stripeIdx: stripeIdx})
	s.cond.Broadcast()
	s.mu.Unlock()
}

// stop sets the shutdown flag, wakes the worker, and joins it. Maximum
// latency is bounded by s.idleWait. Calling stop twice panics — the
// same contract a plain close(chan) would give, and a deliberate one:
// the engine facade owns exactly one Close() call per lifetime.
func (s *scheduler) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		panic("cachify/engine: scheduler stopped twice")
	}
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *scheduler) run() {
	defer s.wg.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped {
			return
		}

		if s.heap.Len() == 0 {
			s.waitFor(s.idleWait)
			continue
		}

		next := s.heap[0]
		now := time.Now()
		if !next.when.After(now) {
			heap.Pop(&s.heap)
			remove, idx, key := s.remove, next.stripeIdx, next.key
			s.mu.Unlock()
			remove(idx, key, time.Now())
			s.mu.Lock()
			continue
		}

		s.waitFor(next.when.Sub(now))
	}
}

// waitFor blocks on the condition variable for at most d, or until
// woken early by schedule()/stop(). Must be called with s.mu held.
//
// sync.Cond has no built-in timed wait, so a timer goroutine broadcasts
// on our behalf if nothing else does first; it is stopped immediately
// once we wake, so it only ever fires at most once per call.
func (s *scheduler) waitFor(d time.Duration) {
	if d < 0 {
		d = 0
	}
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	s.cond.Wait()
	timer.Stop()
}
