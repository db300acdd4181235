package portfolio

import (
	"sync"
	"time"
)

// circuitBreaker tracks failures per quote source. A source that fails
// threshold times within window is skipped until its cooldown has passed.
// A success clears its history.
type circuitBreaker struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	sources map[string]*sourceHealth
}

type sourceHealth struct {
	failures  int
	since     time.Time
	openUntil time.Time
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &circuitBreaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
		sources:   map[string]*sourceHealth{},
	}
}

// allow reports whether source may be called now.
func (b *circuitBreaker) allow(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.sources[source]
	return !ok || !b.now().Before(h.openUntil)
}

// failure records a failed call. It returns the end of the cooldown when
// this failure opened the circuit, or the zero time.
func (b *circuitBreaker) failure(source string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	h := b.sources[source]
	if h == nil || now.Sub(h.since) > b.window {
		h = &sourceHealth{since: now}
		b.sources[source] = h
	}
	h.failures++
	if h.failures < b.threshold {
		return time.Time{}
	}
	h.openUntil = now.Add(b.cooldown)
	return h.openUntil
}

func (b *circuitBreaker) success(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sources, source)
}
