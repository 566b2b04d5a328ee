// Package keypool manages a fixed pool of interchangeable API credentials,
// each individually rate limited with a sliding per-minute window. Selection
// is risk scored: the pool prefers not to immediately re-select a credential
// that just recovered from a rate limit, since naive round-robin re-triggers
// the same upstream throttle.
package keypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
)

const (
	// slidingWindow is the trailing window for per-credential usage counting
	slidingWindow = time.Minute

	// frequencyWindow bounds how far back rate-limit events count toward
	// the frequency penalty
	frequencyWindow = 10 * time.Minute

	// streakResetAfter clears the consecutive rate-limit counter once a
	// credential is cleanly selected this long after its last recovery
	streakResetAfter = 5 * time.Minute

	// abortHorizon is how far in the future every credential's lockout must
	// extend before ShouldAbort reports true
	abortHorizon = 5 * time.Minute

	// historyLimit bounds rateLimitHistory
	historyLimit = 32

	// minPollSleep prevents busy-looping in WaitForAvailable
	minPollSleep = 500 * time.Millisecond

	// maxImmediateRetries caps consecutive zero-wait polls before a forced sleep
	maxImmediateRetries = 5
)

// credential is one API key plus its rolling usage and rate-limit state.
// All fields are guarded by the pool mutex.
type credential struct {
	id               string
	key              string
	requests         []time.Time // sliding window, pruned lazily on access
	rateLimitedUntil time.Time
	lastRecovery     time.Time // set when rateLimitedUntil is first observed to have passed
	consecutiveHits  int
	history          []time.Time // recent rate-limit events, bounded
	totalRequests    int64
}

// Credential is the momentarily-valid view handed to callers. The raw key is
// exposed only through Key(); logs must use ID or Redacted().
type Credential struct {
	id  string
	key string
}

// ID returns the stable, opaque credential identifier
func (c Credential) ID() string { return c.id }

// Key returns the underlying API key for use in an outbound call
func (c Credential) Key() string { return c.key }

// Redacted returns the last-8-character suffix for logging
func (c Credential) Redacted() string { return redact(c.key) }

func redact(key string) string {
	if len(key) <= 8 {
		return "..." + key
	}
	return "..." + key[len(key)-8:]
}

// Pool owns the credential set. The set is fixed at construction; all
// scan-and-select and record operations run under a single mutex so that
// "check then claim" is atomic.
type Pool struct {
	mu          sync.Mutex
	credentials []*credential
	byID        map[string]*credential
	maxPerMin   int
	limitWindow time.Duration // default lockout when no retry-after is given
	weights     common.RiskWeights
	recoveryWin time.Duration
	logger      arbor.ILogger
	now         func() time.Time
}

// New creates a credential pool from the given API keys.
func New(keys []string, cfg common.PoolConfig, logger arbor.ILogger) (*Pool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one API key must be provided")
	}

	p := &Pool{
		credentials: make([]*credential, 0, len(keys)),
		byID:        make(map[string]*credential, len(keys)),
		maxPerMin:   cfg.MaxRequestsPerMinute,
		limitWindow: common.Duration(cfg.RateLimitWindow),
		weights:     cfg.Risk,
		recoveryWin: common.Duration(cfg.Risk.RecoveryWindow),
		logger:      logger,
		now:         time.Now,
	}
	if p.limitWindow <= 0 {
		p.limitWindow = time.Minute
	}
	if p.recoveryWin <= 0 {
		p.recoveryWin = 30 * time.Second
	}

	ids := make([]string, 0, len(keys))
	for i, key := range keys {
		c := &credential{
			id:  fmt.Sprintf("cred-%d", i+1),
			key: key,
		}
		p.credentials = append(p.credentials, c)
		p.byID[c.id] = c
		ids = append(ids, redact(key))
	}

	logger.Info().
		Int("keys", len(keys)).
		Int("max_requests_per_minute", p.maxPerMin).
		Strs("key_ids", ids).
		Msg("Initialized credential pool")

	return p, nil
}

// prune removes request timestamps older than the sliding window
func (c *credential) prune(now time.Time) {
	cutoff := now.Add(-slidingWindow)
	i := 0
	for i < len(c.requests) && c.requests[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.requests = append(c.requests[:0], c.requests[i:]...)
	}
}

// availableLocked reports whether a credential can be used right now.
// It also performs the lazy recovery transition: the first observation of an
// expired lockout clears it and stamps lastRecovery.
func (p *Pool) availableLocked(c *credential, now time.Time) bool {
	if !c.rateLimitedUntil.IsZero() {
		if now.Before(c.rateLimitedUntil) {
			return false
		}
		c.rateLimitedUntil = time.Time{}
		c.lastRecovery = now
		p.logger.Info().
			Str("key", redact(c.key)).
			Msg("Rate limit cleared for credential")
	}

	c.prune(now)
	return len(c.requests) < p.maxPerMin
}

// riskLocked computes the selection risk score for a credential; lower is
// better. Usage dominates, then recency of recovery, rate-limit frequency,
// consecutive-hit streak, and finally long-run balance.
func (p *Pool) riskLocked(c *credential, now time.Time, avgTotal float64) float64 {
	w := p.weights
	score := 0.0

	// 1. Current usage (dominant term)
	score += float64(len(c.requests)) / float64(p.maxPerMin) * w.UsageWeight

	// 2. Recent recovery penalty, linearly decaying over the recovery window
	if !c.lastRecovery.IsZero() {
		since := now.Sub(c.lastRecovery)
		if since < p.recoveryWin {
			score += (1 - since.Seconds()/p.recoveryWin.Seconds()) * w.RecoveryPenaltyMax
		}
	}

	// 3. Rate-limit frequency over the last 10 minutes
	freq := 0.0
	for _, t := range c.history {
		if now.Sub(t) < frequencyWindow {
			freq += w.FrequencyPenalty
		}
	}
	if freq > w.FrequencyPenaltyCap {
		freq = w.FrequencyPenaltyCap
	}
	score += freq

	// 4. Consecutive rate-limit streak
	streak := float64(c.consecutiveHits) * w.StreakPenalty
	if streak > w.StreakPenaltyCap {
		streak = w.StreakPenaltyCap
	}
	score += streak

	// 5. Long-run balance: penalize usage above the pool average
	if avgTotal > 0 {
		deviation := (float64(c.totalRequests) - avgTotal) / avgTotal
		if deviation > 0 {
			penalty := deviation * w.BalancePenaltyMax
			if penalty > w.BalancePenaltyMax {
				penalty = w.BalancePenaltyMax
			}
			score += penalty
		}
	}

	return score
}

func (p *Pool) avgTotalLocked() float64 {
	var sum int64
	for _, c := range p.credentials {
		sum += c.totalRequests
	}
	return float64(sum) / float64(len(p.credentials))
}

type scored struct {
	cred *credential
	risk float64
}

// scanLocked returns all currently available credentials sorted by ascending
// risk score. Insertion sort keeps it allocation-light for small pools.
func (p *Pool) scanLocked(now time.Time) []scored {
	avg := p.avgTotalLocked()
	var out []scored
	for _, c := range p.credentials {
		if !p.availableLocked(c, now) {
			continue
		}
		s := scored{cred: c, risk: p.riskLocked(c, now, avg)}
		pos := len(out)
		for pos > 0 && out[pos-1].risk > s.risk {
			pos--
		}
		out = append(out, scored{})
		copy(out[pos+1:], out[pos:])
		out[pos] = s
	}
	return out
}

// Acquire returns the lowest-risk available credential, or false if every
// credential is rate limited or at capacity. Usage is only recorded after the
// call completes via RecordSuccess, so transient over-selection before that
// record is tolerated; the per-minute cap is a soft approximation of the
// upstream quota, not a hard mutex on the credential.
func (p *Pool) Acquire() (Credential, bool) {
	return p.acquire("")
}

// AcquirePreferred behaves like Acquire but returns the hinted credential when
// it is still available, regardless of risk ranking. The hint is advisory:
// an unavailable hint falls back to normal risk-scored selection.
func (p *Pool) AcquirePreferred(id string) (Credential, bool) {
	return p.acquire(id)
}

func (p *Pool) acquire(preferred string) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	if preferred != "" {
		if c, ok := p.byID[preferred]; ok && p.availableLocked(c, now) {
			p.selectLocked(c, now, 0)
			return Credential{id: c.id, key: c.key}, true
		}
	}

	ranked := p.scanLocked(now)
	if len(ranked) == 0 {
		p.logger.Debug().Msg("No available credentials found")
		return Credential{}, false
	}

	best := ranked[0]
	p.selectLocked(best.cred, now, best.risk)
	return Credential{id: best.cred.id, key: best.cred.key}, true
}

// selectLocked applies clean-selection bookkeeping: the consecutive-hit
// streak resets once a credential is selected well clear of its last recovery.
func (p *Pool) selectLocked(c *credential, now time.Time, risk float64) {
	if c.lastRecovery.IsZero() || now.Sub(c.lastRecovery) > streakResetAfter {
		c.consecutiveHits = 0
	}

	p.logger.Debug().
		Str("key", redact(c.key)).
		Int("current_requests", len(c.requests)).
		Int("max_requests", p.maxPerMin).
		Float64("risk_score", risk).
		Msg("Selected credential")
}

// AcquireMany returns up to n distinct available credentials sorted by risk
// score ascending. It does not reserve them; the list is advisory and a
// credential in it can still be handed out by Acquire.
func (p *Pool) AcquireMany(n int) []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	ranked := p.scanLocked(p.now())
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}

	out := make([]Credential, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, Credential{id: s.cred.id, key: s.cred.key})
	}
	return out
}

// RecordSuccess records a completed request against the credential's sliding
// window and lifetime counter.
func (p *Pool) RecordSuccess(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byID[id]
	if !ok {
		return
	}

	now := p.now()
	c.prune(now)
	c.requests = append(c.requests, now)
	c.totalRequests++

	p.logger.Debug().
		Str("key", redact(c.key)).
		Int("current_requests", len(c.requests)).
		Int("max_requests", p.maxPerMin).
		Msg("Recorded request for credential")
}

// RecordRateLimited marks a credential as rate limited. retryAfter <= 0 falls
// back to the configured default lockout window.
func (p *Pool) RecordRateLimited(id string, retryAfter time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byID[id]
	if !ok {
		return
	}

	if retryAfter <= 0 {
		retryAfter = p.limitWindow
	}

	now := p.now()
	c.rateLimitedUntil = now.Add(retryAfter)
	c.consecutiveHits++
	c.history = append(c.history, now)
	if len(c.history) > historyLimit {
		c.history = append(c.history[:0], c.history[len(c.history)-historyLimit:]...)
	}

	p.logger.Warn().
		Str("key", redact(c.key)).
		Dur("retry_after", retryAfter).
		Int("consecutive_hits", c.consecutiveHits).
		Msg("Credential hit rate limit")
}

// NextAvailableAt returns when the next credential will become available.
// Returns the current time if one is available now.
func (p *Pool) NextAvailableAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var earliest time.Time

	for _, c := range p.credentials {
		if p.availableLocked(c, now) {
			return now
		}

		var at time.Time
		if !c.rateLimitedUntil.IsZero() {
			at = c.rateLimitedUntil
		} else if len(c.requests) > 0 {
			// At capacity: available when the oldest request ages out
			at = c.requests[0].Add(slidingWindow)
		}
		if !at.IsZero() && (earliest.IsZero() || at.Before(earliest)) {
			earliest = at
		}
	}

	if earliest.IsZero() {
		return now.Add(slidingWindow)
	}
	return earliest
}

// WaitForAvailable blocks until a credential is available, the context is
// cancelled, or maxWait elapses. Empty polls sleep at least minPollSleep, and
// consecutive zero-wait retries are capped to prevent busy-looping.
func (p *Pool) WaitForAvailable(ctx context.Context, maxWait time.Duration) (Credential, bool) {
	deadline := p.now().Add(maxWait)
	immediateRetries := 0

	p.logger.Info().Dur("max_wait", maxWait).Msg("Waiting for available credential")

	for {
		if cred, ok := p.Acquire(); ok {
			return cred, true
		}

		now := p.now()
		if !now.Before(deadline) {
			break
		}

		next := p.NextAvailableAt()
		if !next.After(now) {
			// State says a credential should be free; guard against spinning
			immediateRetries++
			if immediateRetries >= maxImmediateRetries {
				if !sleepCtx(ctx, minPollSleep) {
					return Credential{}, false
				}
				immediateRetries = 0
			} else if !sleepCtx(ctx, 100*time.Millisecond) {
				return Credential{}, false
			}
			continue
		}
		immediateRetries = 0

		wait := next.Sub(now)
		if remaining := deadline.Sub(now); wait > remaining {
			wait = remaining
		}
		if wait < minPollSleep {
			wait = minPollSleep
		}

		p.logger.Info().
			Dur("wait", wait).
			Str("pool", p.Summary()).
			Msg("All credentials busy, waiting for next available")

		if !sleepCtx(ctx, wait) {
			return Credential{}, false
		}
	}

	p.logger.Error().
		Dur("max_wait", maxWait).
		Str("pool", p.Summary()).
		Msg("Timeout waiting for available credential")
	return Credential{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ShouldAbort reports whether every credential is rate limited more than five
// minutes into the future, in which case callers should fail fast rather
// than wait.
func (p *Pool) ShouldAbort() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	horizon := p.now().Add(abortHorizon)
	for _, c := range p.credentials {
		if c.rateLimitedUntil.IsZero() || c.rateLimitedUntil.Before(horizon) {
			return false
		}
	}

	p.logger.Warn().Msg("All credentials rate limited for extended periods")
	return true
}

// Size returns the number of credentials in the pool
func (p *Pool) Size() int {
	return len(p.credentials)
}

// Summary returns a one-line availability summary for logging
func (p *Pool) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	available, limited := 0, 0
	for _, c := range p.credentials {
		if !c.rateLimitedUntil.IsZero() && now.Before(c.rateLimitedUntil) {
			limited++
			continue
		}
		c.prune(now)
		if len(c.requests) < p.maxPerMin {
			available++
		}
	}

	return fmt.Sprintf("%d/%d credentials available, %d rate limited", available, len(p.credentials), limited)
}

// CredentialStats is a point-in-time snapshot of one credential's state
type CredentialStats struct {
	ID              string
	KeySuffix       string
	CurrentRequests int
	MaxRequests     int
	TotalRequests   int64
	RateLimited     bool
	RateLimitedFor  time.Duration
	ConsecutiveHits int
}

// Stats returns a snapshot of every credential for observability
func (p *Pool) Stats() []CredentialStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := make([]CredentialStats, 0, len(p.credentials))
	for _, c := range p.credentials {
		c.prune(now)
		s := CredentialStats{
			ID:              c.id,
			KeySuffix:       redact(c.key),
			CurrentRequests: len(c.requests),
			MaxRequests:     p.maxPerMin,
			TotalRequests:   c.totalRequests,
			ConsecutiveHits: c.consecutiveHits,
		}
		if !c.rateLimitedUntil.IsZero() && now.Before(c.rateLimitedUntil) {
			s.RateLimited = true
			s.RateLimitedFor = c.rateLimitedUntil.Sub(now)
		}
		stats = append(stats, s)
	}
	return stats
}

// SetNowFunc overrides the pool clock. Test hook only.
func (p *Pool) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}
