package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerHost keeps one token bucket per remote host so RIPE endpoints are not hammered
type PerHost struct {
	mu         sync.Mutex
	m          map[string]*limitEntry
	limit      rate.Limit
	burst      int
	maxEntries int
	idle       time.Duration
}

type limitEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New returns a limiter allowing perSecond requests per host. A zero rate disables limiting.
func New(perSecond float64, burst int) *PerHost {
	lim := rate.Limit(perSecond)
	if perSecond <= 0 {
		lim = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &PerHost{
		m:          make(map[string]*limitEntry),
		limit:      lim,
		burst:      burst,
		maxEntries: 1024,
		idle:       time.Hour,
	}
}

func (p *PerHost) entry(host string) *limitEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	e, ok := p.m[host]
	if !ok {
		if len(p.m) >= p.maxEntries {
			p.prune(now)
		}
		e = &limitEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.m[host] = e
	}
	e.lastUsed = now
	return e
}

// prune drops hosts idle for longer than p.idle. Caller holds p.mu.
func (p *PerHost) prune(now time.Time) {
	cutoff := now.Add(-p.idle)
	for host, e := range p.m {
		if e.lastUsed.Before(cutoff) {
			delete(p.m, host)
		}
	}
}

// allow reports whether a request to host may happen now
func (p *PerHost) allow(host string) bool {
	return p.entry(host).limiter.Allow()
}

// Wait blocks until a request to host is allowed or ctx is done
func (p *PerHost) Wait(ctx context.Context, host string) error {
	return p.entry(host).limiter.Wait(ctx)
}

// size returns the number of tracked hosts
func (p *PerHost) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
