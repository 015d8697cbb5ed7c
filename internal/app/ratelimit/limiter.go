// Package ratelimit provides connection admission control, message
// throttling and daily usage quotas backed by the ephemeral store.
package ratelimit

import (
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/infra/store"
)

// Counter key prefixes. Connection counters are TTL-bounded so a crashed
// process cannot pin a session out forever.
const (
	sessionConnPrefix = "ws_connections_session_"
	ipConnPrefix      = "ws_connections_ip_"
	burstPrefix       = "ws_burst_"
	minutePrefix      = "ws_minute_"
	startPrefix       = "ws_start_"
	usagePrefix       = "ws_usage_"

	connCounterTTL = time.Hour
	startMarkerTTL = time.Hour
)

// Options holds the admission-control knobs.
type Options struct {
	MaxConnectionsPerSession int
	MaxConnectionsPerIP      int
	// DailyLimitSeconds bounds cumulative connected time per day for
	// unauthenticated sessions. Zero disables the quota.
	DailyLimitSeconds int

	Burst  WindowConfig
	Minute WindowConfig
}

// windowCounter tracks a message count inside a sliding window.
type windowCounter struct {
	count       int
	windowStart float64
}

// Limiter composes the four independent checks described by Options.
type Limiter struct {
	store *store.Store
	opts  Options

	// now returns unix seconds; swappable for tests.
	now func() float64
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(st *store.Store, opts Options) *Limiter {
	return &Limiter{
		store: st,
		opts:  opts,
		now:   func() float64 { return float64(time.Now().UnixNano()) / float64(time.Second) },
	}
}

// CheckConnection runs the admission checks: concurrent-connection caps
// for the session key and the client IP, then the daily quota for
// unauthenticated sessions. Returns a human-readable reason on failure.
func (l *Limiter) CheckConnection(sessionKey, ipAddress string, authenticated bool) (bool, string) {
	if sessionKey != "" && l.opts.MaxConnectionsPerSession > 0 {
		if l.store.GetInt(sessionConnPrefix+sessionKey) >= l.opts.MaxConnectionsPerSession {
			return false, "too many concurrent connections for this session"
		}
	}
	if ipAddress != "" && l.opts.MaxConnectionsPerIP > 0 {
		if l.store.GetInt(ipConnPrefix+ipAddress) >= l.opts.MaxConnectionsPerIP {
			return false, "too many concurrent connections from this address"
		}
	}
	if sessionKey != "" {
		if ok, reason := l.checkDailyQuota(sessionKey, authenticated); !ok {
			return false, reason
		}
	}
	return true, ""
}

// Register increments the concurrent-connection counters. Every
// successful admission must be paired with exactly one Unregister.
func (l *Limiter) Register(sessionKey, ipAddress string) {
	if sessionKey != "" {
		l.store.Incr(sessionConnPrefix+sessionKey, 1, connCounterTTL)
	}
	if ipAddress != "" {
		l.store.Incr(ipConnPrefix+ipAddress, 1, connCounterTTL)
	}
}

// Unregister decrements the concurrent-connection counters, floored at
// zero.
func (l *Limiter) Unregister(sessionKey, ipAddress string) {
	if sessionKey != "" {
		l.store.DecrFloor(sessionConnPrefix+sessionKey, connCounterTTL)
	}
	if ipAddress != "" {
		l.store.DecrFloor(ipConnPrefix+ipAddress, connCounterTTL)
	}
}

// CheckMessage runs the burst and per-minute throttles for one inbound
// message. Counters advance only when both checks pass, so a rejected
// message does not consume budget. A rule with a non-positive limit is
// disabled.
func (l *Limiter) CheckMessage(connectionID string) (bool, string) {
	now := l.now()

	var burst, minute windowCounter
	var ok bool

	if l.opts.Burst.Limit > 0 {
		if burst, ok = l.windowFor(burstPrefix+connectionID, l.opts.Burst, now); !ok {
			return false, "burst limit exceeded"
		}
	}
	if l.opts.Minute.Limit > 0 {
		if minute, ok = l.windowFor(minutePrefix+connectionID, l.opts.Minute, now); !ok {
			return false, "rate limit exceeded"
		}
	}

	if l.opts.Burst.Limit > 0 {
		burst.count++
		l.store.Set(burstPrefix+connectionID, burst, windowTTL(l.opts.Burst))
	}
	if l.opts.Minute.Limit > 0 {
		minute.count++
		l.store.Set(minutePrefix+connectionID, minute, windowTTL(l.opts.Minute))
	}
	return true, ""
}

// windowFor loads the window counter under key, restarting it when the
// elapsed time exceeds the window width, and reports whether another
// message still fits.
func (l *Limiter) windowFor(key string, cfg WindowConfig, now float64) (windowCounter, bool) {
	wc := windowCounter{windowStart: now}
	if v, ok := l.store.Get(key); ok {
		if cur, ok := v.(windowCounter); ok {
			wc = cur
		}
	}
	if now-wc.windowStart > cfg.WindowSec {
		wc = windowCounter{windowStart: now}
	}
	if wc.count >= cfg.Limit {
		return wc, false
	}
	return wc, true
}

// StartTracking records the connection start stamp for an
// unauthenticated session. Authenticated sessions are not tracked.
func (l *Limiter) StartTracking(sessionKey string, authenticated bool) {
	if authenticated || sessionKey == "" {
		return
	}
	l.store.Set(startPrefix+sessionKey, l.now(), startMarkerTTL)
}

// FinalizeUsage folds the elapsed connection time into today's usage
// accumulator and clears the start marker. A missing or expired marker
// contributes zero; there is no retroactive penalty. Returns the seconds
// added.
func (l *Limiter) FinalizeUsage(sessionKey string, authenticated bool) float64 {
	if authenticated || sessionKey == "" {
		return 0
	}

	v, ok := l.store.Get(startPrefix + sessionKey)
	if !ok {
		return 0
	}
	start, _ := v.(float64)
	l.store.Delete(startPrefix + sessionKey)

	elapsed := l.now() - start
	if elapsed < 0 {
		elapsed = 0
	}

	total := l.store.AddFloat(l.usageKey(sessionKey), elapsed, usageTTL())
	zlog.Debug().Msgf("usage finalized: session=%s added=%.1fs total=%.1fs", sessionKey, elapsed, total)
	return elapsed
}

// UsageToday returns today's accumulated connected time in seconds.
func (l *Limiter) UsageToday(sessionKey string) float64 {
	return l.store.GetFloat(l.usageKey(sessionKey))
}

func (l *Limiter) checkDailyQuota(sessionKey string, authenticated bool) (bool, string) {
	if authenticated || l.opts.DailyLimitSeconds <= 0 {
		return true, ""
	}
	if l.UsageToday(sessionKey) >= float64(l.opts.DailyLimitSeconds) {
		return false, "daily time limit exceeded"
	}
	return true, ""
}

// usageKey is keyed per calendar date, so the quota resets implicitly
// when the date changes.
func (l *Limiter) usageKey(sessionKey string) string {
	day := time.Unix(int64(l.now()), 0).UTC().Format("2006-01-02")
	return fmt.Sprintf("%s%s_%s", usagePrefix, sessionKey, day)
}

func windowTTL(cfg WindowConfig) time.Duration {
	return time.Duration(cfg.WindowSec+10) * time.Second
}

// usageTTL keeps a day's accumulator around long enough to cover the
// whole day regardless of when the first connection happened.
func usageTTL() time.Duration {
	return 48 * time.Hour
}
