package portfolio

import (
	"time"

	"github.com/patrickmn/go-cache"

	"costbasis/pkg/costbasis"
)

const (
	ckRealized   = "realized"
	ckUnrealized = "unrealized"
	ckPositions  = "positions"
)

// reportCache holds computed reports until the book or its prices change.
type reportCache struct {
	c   *cache.Cache
	ttl time.Duration
}

func newReportCache(ttl time.Duration) *reportCache {
	return &reportCache{c: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (r *reportCache) realized() (costbasis.RealizedPnLSummary, bool) {
	v, ok := r.c.Get(ckRealized)
	if !ok {
		return costbasis.RealizedPnLSummary{}, false
	}
	return v.(costbasis.RealizedPnLSummary), true
}

func (r *reportCache) setRealized(s costbasis.RealizedPnLSummary) {
	r.c.Set(ckRealized, s, r.ttl)
}

func (r *reportCache) unrealized() (*UnrealizedReport, bool) {
	v, ok := r.c.Get(ckUnrealized)
	if !ok {
		return nil, false
	}
	return v.(*UnrealizedReport), true
}

func (r *reportCache) setUnrealized(report *UnrealizedReport) {
	r.c.Set(ckUnrealized, report, r.ttl)
}

func (r *reportCache) positions() ([]costbasis.Position, bool) {
	v, ok := r.c.Get(ckPositions)
	if !ok {
		return nil, false
	}
	return v.([]costbasis.Position), true
}

func (r *reportCache) setPositions(p []costbasis.Position) {
	r.c.Set(ckPositions, p, r.ttl)
}

// invalidatePrices drops reports that depend on prices only.
func (r *reportCache) invalidatePrices() {
	r.c.Delete(ckUnrealized)
}

func (r *reportCache) invalidate() {
	r.c.Flush()
}
