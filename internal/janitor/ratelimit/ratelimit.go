// Package ratelimit implements the publisher's maintainer-level proposal cap
// and per-host forge back-off. The maintainer strategies are grounded on
// infrastructure/ratelimit/ratelimit.go's mutex-guarded counter shape; the
// per-host back-off is a mutex-guarded map of per-host deadlines, and
// golang.org/x/time/rate backs only the OutboundLimiter.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MaintainerLimiter caps how many open merge proposals a maintainer may
// accumulate at once.
type MaintainerLimiter interface {
	Allowed(maintainer string) bool
	Inc(maintainer string)
	// SetOpenProposals replaces the open-proposal counts with the given
	// observed values. The publisher's reconciliation sweep does not call
	// it, so the counts are not refreshed from forge state at each sweep.
	SetOpenProposals(counts map[string]int)
}

// None never limits: every maintainer is always allowed.
type None struct{}

func (None) Allowed(string) bool             { return true }
func (None) Inc(string)                      {}
func (None) SetOpenProposals(map[string]int) {}

// MaintainerCap allows at most k open proposals per maintainer.
type MaintainerCap struct {
	mu   sync.Mutex
	cap  int
	open map[string]int
}

// NewMaintainerCap creates a MaintainerCap enforcing k open proposals per
// maintainer.
func NewMaintainerCap(k int) *MaintainerCap {
	return &MaintainerCap{cap: k, open: make(map[string]int)}
}

func (m *MaintainerCap) Allowed(maintainer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[maintainer] < m.cap
}

func (m *MaintainerCap) Inc(maintainer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[maintainer]++
}

func (m *MaintainerCap) SetOpenProposals(counts map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = make(map[string]int, len(counts))
	for k, v := range counts {
		m.open[k] = v
	}
}

// HostBackoff tracks per-host "too-many-requests" cooldowns: once a forge
// host returns too-many-requests, calls to it are refused until the
// cooldown expires.
type HostBackoff struct {
	mu       sync.Mutex
	cooldown time.Duration
	until    map[string]time.Time
	now      func() time.Time
}

// NewHostBackoff creates a HostBackoff with the given cooldown duration.
func NewHostBackoff(cooldown time.Duration) *HostBackoff {
	return &HostBackoff{cooldown: cooldown, until: make(map[string]time.Time), now: time.Now}
}

// MarkLimited records that host returned too-many-requests, starting its
// cooldown from now.
func (h *HostBackoff) MarkLimited(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.until[host] = h.now().Add(h.cooldown)
}

// Allowed reports whether host's cooldown (if any) has lapsed.
func (h *HostBackoff) Allowed(host string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.until[host]
	if !ok {
		return true
	}
	return h.now().After(until)
}

// OutboundLimiter throttles the rate of outbound forge calls, independent of
// the maintainer proposal cap, to stay under a forge's abuse thresholds.
type OutboundLimiter struct {
	limiter *rate.Limiter
}

// NewOutboundLimiter creates an OutboundLimiter allowing requestsPerSecond
// sustained calls with the given burst.
func NewOutboundLimiter(requestsPerSecond float64, burst int) *OutboundLimiter {
	return &OutboundLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Allow reports whether a call may proceed right now.
func (o *OutboundLimiter) Allow() bool {
	return o.limiter.Allow()
}
