package queue

import (
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// Provider produces the queue list for one fetch round, in priority
// order. Implementations must be safe for concurrent use: every worker
// slot calls Queues before each fetch.
type Provider interface {
	Queues() []string
}

// ──────────────────────────────────────────────────
// Strict
// ──────────────────────────────────────────────────

// Strict is a fixed priority order: the first queue is always drained
// before the second is considered.
type Strict []string

// Queues returns the order unchanged.
func (s Strict) Queues() []string { return s }

// ──────────────────────────────────────────────────
// Weighted
// ──────────────────────────────────────────────────

// Weighted fetches from all queues but randomizes the priority order
// each round, biased by weight: a weight-9 queue leads the FETCH about
// nine times as often as a weight-1 queue. This keeps low-priority
// queues moving even when a high-priority queue is always full.
type Weighted struct {
	names   []string
	weights []int
}

// NewWeighted creates a weighted provider. Weights below 1 are raised
// to 1 so every queue keeps a chance of being fetched.
func NewWeighted(weights map[string]int) *Weighted {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	w := &Weighted{
		names:   names,
		weights: make([]int, 0, len(names)),
	}
	for _, name := range names {
		wt := weights[name]
		if wt < 1 {
			wt = 1
		}
		w.weights = append(w.weights, wt)
	}

	return w
}

// Queues returns a fresh weighted-random priority order: repeated
// weighted draws without replacement.
func (w *Weighted) Queues() []string {
	names := slices.Clone(w.names)
	weights := slices.Clone(w.weights)

	total := 0
	for _, wt := range weights {
		total += wt
	}

	out := make([]string, 0, len(names))
	for len(names) > 0 {
		r := rand.IntN(total) //nolint:gosec // queue ordering does not need crypto rand
		for i, wt := range weights {
			r -= wt
			if r < 0 {
				out = append(out, names[i])
				total -= wt
				names = slices.Delete(names, i, i+1)
				weights = slices.Delete(weights, i, i+1)

				break
			}
		}
	}

	return out
}

// ──────────────────────────────────────────────────
// Gate
// ──────────────────────────────────────────────────

// Limit configures one queue's sustained fetch rate and burst for a
// [Gate].
type Limit struct {
	Queue     string
	PerSecond float64
	// Burst is the token-bucket burst size. Defaults to 1.
	Burst int
}

// Gate wraps a Provider with per-queue token buckets. A queue whose
// bucket is empty is left out of that fetch round. The token is spent
// on fetch eligibility, not on a delivered job, so the configured rate
// bounds how often the worker asks, not how many jobs it receives.
type Gate struct {
	next Provider

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGate wraps next with the given per-queue limits. Queues without a
// limit always pass through.
func NewGate(next Provider, limits ...Limit) *Gate {
	g := &Gate{
		next:     next,
		limiters: make(map[string]*rate.Limiter, len(limits)),
	}
	for _, l := range limits {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiters[l.Queue] = rate.NewLimiter(rate.Limit(l.PerSecond), burst)
	}

	return g
}

// Queues filters the wrapped provider's order through the buckets.
func (g *Gate) Queues() []string {
	queues := g.next.Queues()

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(queues))
	for _, q := range queues {
		if lim, ok := g.limiters[q]; ok && !lim.Allow() {
			continue
		}
		out = append(out, q)
	}

	return out
}
