// Package router implements the per-request local-vs-forward routing
// decision described in spec.md §4.4: a query is categorized by cheap
// keyword matching, scored against learned per-category success rates,
// and either served by the local model or forwarded to a cloud provider.
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/forgehq/forge/internal/bootstrap"
)

// Category is one of a fixed set of cheap keyword-matched query buckets.
type Category string

const (
	CategoryGreeting   Category = "greeting"
	CategoryDefinition Category = "definition"
	CategoryDebugging  Category = "debugging"
	CategoryComparison Category = "comparison"
	CategoryOther      Category = "other"
)

// ForwardReason tags why a decision routed upstream instead of locally.
type ForwardReason string

const (
	ReasonNone          ForwardReason = ""
	ReasonModelNotReady ForwardReason = "ModelNotReady"
	ReasonLowConfidence ForwardReason = "LowConfidence"
	ReasonNoMatch       ForwardReason = "NoMatch"
	ReasonCrisis        ForwardReason = "Crisis"
)

// Decision is the tagged result of Router.Route.
type Decision struct {
	Target   Target
	Category Category
	Reason   ForwardReason
}

// Target enumerates the two places a query can be routed.
type Target int

const (
	TargetLocal Target = iota
	TargetForward
)

func (t Target) String() string {
	if t == TargetLocal {
		return "local"
	}
	return "forward"
}

// CategoryStats tracks attempts and successes for one category. Only
// locally-attempted queries increment Attempts; forwarded queries never do
// (spec.md §3 CategoryStats invariant).
type CategoryStats struct {
	Attempts  uint64
	Successes uint64
}

// SuccessRate returns Successes/Attempts, or 0 when there is no data yet.
func (s CategoryStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Config tunes the routing thresholds of spec.md §4.4.
type Config struct {
	// MinSamples is the attempts-per-category floor below which the router
	// keeps exploring locally regardless of success rate. Default: 2.
	MinSamples uint64

	// ConfidenceThreshold is the minimum per-category success rate required
	// to keep routing locally once MinSamples has been reached. Default: 0.75.
	ConfidenceThreshold float64
}

// DefaultConfig returns spec.md's default thresholds.
func DefaultConfig() Config {
	return Config{MinSamples: 2, ConfidenceThreshold: 0.75}
}

// Generator reports the local model's readiness. *bootstrap.Generator
// satisfies this directly.
type Generator interface {
	State() bootstrap.State
}

// Router holds learned CategoryStats behind a lock-free map and makes the
// local-vs-forward decision for each query.
type Router struct {
	cfg       Config
	generator Generator

	stats *xsync.MapOf[Category, CategoryStats]

	mu                 sync.Mutex
	totalQueries       uint64
	totalLocalAttempts uint64
	totalForwarded     uint64

	store *Store
}

// New creates a Router. generator may be nil, in which case the router
// always forwards with ReasonModelNotReady (safe default for a process
// with no local engine configured).
func New(cfg Config, generator Generator) *Router {
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 2
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.75
	}
	return &Router{
		cfg:       cfg,
		generator: generator,
		stats:     xsync.NewMapOf[Category, CategoryStats](),
	}
}

// AttachStore wires atomic on-disk persistence; see Store.
func (r *Router) AttachStore(s *Store) {
	r.store = s
}

// Route categorizes the query and applies spec.md §4.4's decision table.
// Route is deterministic: the same query text against the same stats
// snapshot always yields the same Decision (spec.md §8 invariant 5) —
// no randomness or wall-clock input is consulted.
func (r *Router) Route(query string) Decision {
	category := Classify(query)

	if r.generator != nil && r.generator.State() != bootstrap.StateReady {
		return Decision{Target: TargetForward, Category: category, Reason: ReasonModelNotReady}
	}

	stats, _ := r.stats.Load(category)

	if stats.Attempts < r.cfg.MinSamples {
		return Decision{Target: TargetLocal, Category: category}
	}
	if stats.SuccessRate() < r.cfg.ConfidenceThreshold {
		return Decision{Target: TargetForward, Category: category, Reason: ReasonLowConfidence}
	}
	return Decision{Target: TargetLocal, Category: category}
}

// LearnLocalAttempt records the outcome of a query that was actually
// attempted locally. Increments both TotalQueries and
// TotalLocalAttempts, plus the category's Attempts/Successes.
func (r *Router) LearnLocalAttempt(query string, success bool) {
	category := Classify(query)
	r.stats.Compute(category, func(old CategoryStats, loaded bool) (CategoryStats, bool) {
		old.Attempts++
		if success {
			old.Successes++
		}
		return old, false
	})

	r.mu.Lock()
	r.totalQueries++
	r.totalLocalAttempts++
	r.mu.Unlock()

	r.maybePersist()
}

// LearnForwarded records that a query was forwarded upstream. Only
// TotalQueries is incremented — a forwarded query was never "attempted"
// locally, so it must never touch TotalLocalAttempts (spec.md §8
// invariant 2: TotalQueries >= TotalLocalAttempts, always).
func (r *Router) LearnForwarded(query string) {
	r.mu.Lock()
	r.totalQueries++
	r.totalForwarded++
	r.mu.Unlock()

	r.maybePersist()
}

// Snapshot returns a point-in-time copy of all counters, for persistence
// and for /status-style introspection.
type Snapshot struct {
	TotalQueries       uint64
	TotalLocalAttempts uint64
	TotalForwarded     uint64
	Categories         map[Category]CategoryStats
}

// Snapshot takes a consistent copy of the router's learned state.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	snap := Snapshot{
		TotalQueries:       r.totalQueries,
		TotalLocalAttempts: r.totalLocalAttempts,
		TotalForwarded:     r.totalForwarded,
		Categories:         make(map[Category]CategoryStats),
	}
	r.mu.Unlock()

	r.stats.Range(func(k Category, v CategoryStats) bool {
		snap.Categories[k] = v
		return true
	})
	return snap
}

// Restore replaces the router's learned state with a previously persisted
// Snapshot. If the snapshot violates the TotalLocalAttempts <=
// TotalQueries invariant (spec.md §4.4, data from an earlier buggy
// version), it is rejected and the router starts from zero instead of
// silently propagating corrupt counters.
func (r *Router) Restore(snap Snapshot) error {
	if snap.TotalLocalAttempts > snap.TotalQueries {
		return fmt.Errorf("router: corrupt stats snapshot (total_local_attempts=%d > total_queries=%d)",
			snap.TotalLocalAttempts, snap.TotalQueries)
	}

	r.mu.Lock()
	r.totalQueries = snap.TotalQueries
	r.totalLocalAttempts = snap.TotalLocalAttempts
	r.totalForwarded = snap.TotalForwarded
	r.mu.Unlock()

	r.stats = xsync.NewMapOf[Category, CategoryStats]()
	for cat, stats := range snap.Categories {
		r.stats.Store(cat, stats)
	}
	return nil
}

var persistEvery uint64 = 5

func (r *Router) maybePersist() {
	if r.store == nil {
		return
	}
	r.mu.Lock()
	n := r.totalQueries
	r.mu.Unlock()
	if n%persistEvery != 0 {
		return
	}
	_ = r.store.Save(r.Snapshot())
}

// Classify buckets a query into one of the fixed categories via cheap
// keyword matching, per spec.md §4.4.
func Classify(query string) Category {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case q == "":
		return CategoryOther
	case matchesAny(q, "hi", "hello", "hey", "good morning", "good evening", "howdy"):
		return CategoryGreeting
	case matchesAny(q, "error", "panic", "crash", "fails", "failing", "traceback", "stack trace", "bug", "doesn't work", "not working"):
		return CategoryDebugging
	case matchesAny(q, "vs", "versus", "compare", "comparison", "difference between", "better than"):
		return CategoryComparison
	case matchesAny(q, "what is", "what's", "define", "definition", "explain", "meaning of"):
		return CategoryDefinition
	default:
		return CategoryOther
	}
}

func matchesAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
