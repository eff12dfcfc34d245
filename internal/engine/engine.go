package engine

import "time"

// DefaultStripes is the server's default stripe count (spec: 128 suits
// hundreds of concurrent connections). Library embedders with a lighter
// workload may prefer DefaultLibraryStripes instead.
const DefaultStripes = 128

// DefaultLibraryStripes is a smaller default suited to embedded use.
const DefaultLibraryStripes = 64

// DefaultIdleWait bounds how long the background expiry worker can
// sleep with nothing scheduled.
const DefaultIdleWait = time.Second

// Engine is the facade over the striped map and the expiry scheduler. It
// is safe for concurrent use by any number of callers, is immutable
// after construction, and owns the background worker for the duration
// of its lifetime.
type Engine struct {
	data  *striped
	sched *scheduler
}

// New returns an Engine with n stripes and the default idle wait. n
// must be >= 1.
func New(n int) *Engine {
	return NewWithIdleWait(n, DefaultIdleWait)
}

// NewWithIdleWait returns an Engine with n stripes whose background
// expiry worker sleeps at most idleWait between checks when it has
// nothing scheduled. n must be >= 1; idleWait <= 0 falls back to
// DefaultIdleWait.
func NewWithIdleWait(n int, idleWait time.Duration) *Engine {
	e := &Engine{data: newStriped(n)}
	e.sched = newScheduler(e.removeIfExpired, idleWait)
	return e
}

// Close stops and joins the background expiry worker. It must be called
// exactly once per Engine; calling it twice panics.
func (e *Engine) Close() {
	e.sched.stop()
}

// Set stores value under key. ttlSeconds <= 0 means the entry never
// expires; ttlSeconds > 0 schedules the entry for expiry.
func (e *Engine) Set(key, value string, ttlSeconds int) {
	idx := e.data.index(key)

	var expiry time.Time
	if ttlSeconds > 0 {
		expiry = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}

	e.data.at(idx).set(key, entry{value: value, expiry: expiry})

	if ttlSeconds > 0 {
		e.sched.schedule(idx, key, expiry)
	}
}

// Get looks up key. It returns (value, true) if present and not
// expired. An entry observed expired here is removed in place — lazy
// expiry complementing the background scheduler.
func (e *Engine) Get(key string) (string, bool) {
	idx := e.data.index(key)
	return e.data.at(idx).get(key, time.Now())
}

// Del removes key if present, returning whether it was.
func (e *Engine) Del(key string) bool {
	idx := e.data.index(key)
	return e.data.at(idx).del(key)
}

// Size sums per-stripe sizes. Approximate under concurrent mutation.
func (e *Engine) Size() int {
	return e.data.size()
}

func (e *Engine) removeIfExpired(stripeIdx int, key string, now time.Time) {
	e.data.at(stripeIdx).removeIfExpired(key, now)
}
