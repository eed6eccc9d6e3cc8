// Package throttle limits request rates globally and per client.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

// Config configuration for Throttle
type Config struct {
	TotalNPerSec, TotalBurst     int
	EachKeyNPerSec, EachKeyBurst int

	// IdleTTL drops per-key limiters unused for this long. Zero means 10 minutes.
	IdleTTL time.Duration
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle admits a request only when both the shared and the per-key budget allow it.
type Throttle struct {
	mu    sync.Mutex
	cfg   Config
	total *rate.Limiter
	keys  map[string]*keyLimiter
	now   func() time.Time
}

// New create new Throttle. Idle per-key limiters are swept until ctx is done.
func New(ctx context.Context, cfg Config) (*Throttle, error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachKeyNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachKeyBurst < cfg.EachKeyNPerSec {
		return nil, errors.New("burst must not be smaller than NPerSec")
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	t := &Throttle{
		cfg:   cfg,
		total: rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		keys:  make(map[string]*keyLimiter),
		now:   time.Now,
	}
	go t.sweepLoop(ctx)

	return t, nil
}

// Allow reports whether key may proceed now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	now := t.now()
	kl, ok := t.keys[key]
	if !ok {
		kl = &keyLimiter{
			limiter: rate.NewLimiter(rate.Limit(t.cfg.EachKeyNPerSec), t.cfg.EachKeyBurst),
		}
		t.keys[key] = kl
	}
	kl.lastSeen = now
	t.mu.Unlock()

	// per-key first so one noisy client cannot drain the shared budget
	keyRsv, ok := reserveNow(kl.limiter, now)
	if !ok {
		return false
	}
	if _, ok = reserveNow(t.total, now); !ok {
		// a shared-budget denial must not cost the caller its own allowance
		keyRsv.CancelAt(now)
		return false
	}

	return true
}

// reserveNow takes one token if it is available at now, and takes nothing otherwise.
func reserveNow(l *rate.Limiter, now time.Time) (*rate.Reservation, bool) {
	rsv := l.ReserveN(now, 1)
	if !rsv.OK() {
		return nil, false
	}
	if rsv.DelayFrom(now) > 0 {
		rsv.CancelAt(now)
		return nil, false
	}
	return rsv, true
}

func (t *Throttle) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.IdleTTL)
	for key, kl := range t.keys {
		if kl.lastSeen.Before(cutoff) {
			delete(t.keys, key)
		}
	}
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
