// Package bootstrap drives the local model's non-blocking startup sequence
// (spec.md §4.5): the REPL must remain responsive while a background task
// detects host memory, downloads/loads a local model, and transitions a
// shared state machine. Grounded on the teacher's background-task-with-
// state-transition pattern used for plugin loading (internal/agent/plugin.go)
// and Bedrock model discovery probing (internal/providers/bedrock/discovery.go):
// both kick a goroutine off immediately and expose a snapshot-style status
// getter guarded by a mutex, never blocking their caller's startup path.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the local generator's lifecycle state. Monotonic except for the
// single allowed backward edge, Ready -> Failed on a runtime error.
type State int

const (
	StateInitializing State = iota
	StateDownloading
	StateLoading
	StateReady
	StateFailed
	StateNotAvailable
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateDownloading:
		return "Downloading"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateNotAvailable:
		return "NotAvailable"
	default:
		return "Unknown"
	}
}

// ModelSize is a discrete local-model tier, picked from host memory.
type ModelSize string

const (
	ModelSize1_5B ModelSize = "1.5B"
	ModelSize3B   ModelSize = "3B"
	ModelSize7B   ModelSize = "7B"
	ModelSize14B  ModelSize = "14B"
)

// PickModelSize maps available host memory (in GB) to a model tier per
// spec.md §4.5's thresholds: <=8GB -> 1.5B, <=16GB -> 3B, <=32GB -> 7B,
// else 14B.
func PickModelSize(memoryGB int) ModelSize {
	switch {
	case memoryGB <= 8:
		return ModelSize1_5B
	case memoryGB <= 16:
		return ModelSize3B
	case memoryGB <= 32:
		return ModelSize7B
	default:
		return ModelSize14B
	}
}

// LocalModel is the capability surface bootstrap hands off once Ready; the
// concrete tensor-kernel implementation (ONNX/Candle) is an external
// collaborator per spec.md §1 and is not part of this package.
type LocalModel interface {
	// Generate is invoked by the router once the generator reaches Ready.
	Generate(ctx context.Context, prompt string) (string, error)
}

// CacheChecker reports whether a model tier's weights are already on disk
// (spec.md §6's huggingface-style cache directory).
type CacheChecker interface {
	// IsCached reports whether size's weights are present in the cache.
	IsCached(size ModelSize) (bool, error)
}

// Downloader streams a model's weights into the cache, reporting progress
// in [0,1] via onProgress.
type Downloader interface {
	Download(ctx context.Context, size ModelSize, onProgress func(progress float64)) error
}

// Loader loads cached weights into memory, producing a ready LocalModel.
type Loader interface {
	Load(ctx context.Context, size ModelSize) (LocalModel, error)
}

// MemoryDetector reports host memory in GB. Exists as an interface purely
// so tests can stub an arbitrary host size.
type MemoryDetector func() (memoryGB int, err error)

// Status is a point-in-time snapshot of the Generator's lifecycle.
type Status struct {
	State    State
	Progress float64 // only meaningful while State == StateDownloading
	Err      error   // only set when State == StateFailed
	Size     ModelSize
}

// Generator owns the local model's background bootstrap task and exposes
// its current Status behind an RWMutex. The background task never holds
// the lock while doing I/O — it takes the lock only to transition state
// (spec.md §4.5).
type Generator struct {
	mu     sync.RWMutex
	status Status
	model  LocalModel

	cache      CacheChecker
	downloader Downloader
	loader     Loader
	detectMem  MemoryDetector

	logger func(format string, args ...any)
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger installs a sink for bootstrap-internal log lines. Errors at
// this boundary are logged but never propagated to the REPL (spec.md §4.5).
func WithLogger(fn func(format string, args ...any)) Option {
	return func(g *Generator) { g.logger = fn }
}

// New constructs a Generator in StateInitializing. Start must be called to
// launch the background task; construction alone never blocks or does I/O.
func New(cache CacheChecker, downloader Downloader, loader Loader, detectMem MemoryDetector, opts ...Option) *Generator {
	g := &Generator{
		status:     Status{State: StateInitializing},
		cache:      cache,
		downloader: downloader,
		loader:     loader,
		detectMem:  detectMem,
		logger:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current lifecycle state. Safe for concurrent use,
// including from within the router's hot path.
func (g *Generator) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status.State
}

// Status returns a full snapshot of the generator's current status.
func (g *Generator) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Model returns the loaded local model once Ready, or nil/false otherwise.
// The model is handed out behind the same read lock the rest of Status
// uses, matching spec.md §3's "unique owner until Ready, then shared read
// lock" ownership rule.
func (g *Generator) Model() (LocalModel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.status.State != StateReady {
		return nil, false
	}
	return g.model, true
}

func (g *Generator) setState(s Status) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

// Start launches the background bootstrap task and returns immediately.
// The caller (a REPL or daemon main loop) must not wait on it: per
// spec.md §8 scenario 5, the REPL accepts input within 100ms regardless
// of how long download/load takes.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	memGB, err := g.detectMemOrDefault()
	if err != nil {
		g.fail(fmt.Errorf("detect host memory: %w", err))
		return
	}
	size := PickModelSize(memGB)
	g.setState(Status{State: StateInitializing, Size: size})

	if g.cache == nil || g.downloader == nil || g.loader == nil {
		g.setState(Status{State: StateNotAvailable, Size: size})
		return
	}

	cached, err := g.cache.IsCached(size)
	if err != nil {
		g.fail(fmt.Errorf("check model cache: %w", err))
		return
	}

	if !cached {
		g.setState(Status{State: StateDownloading, Size: size, Progress: 0})
		err := g.downloader.Download(ctx, size, func(progress float64) {
			g.setState(Status{State: StateDownloading, Size: size, Progress: progress})
		})
		if err != nil {
			g.fail(fmt.Errorf("download model %s: %w", size, err))
			return
		}
	}

	g.setState(Status{State: StateLoading, Size: size})
	model, err := g.loader.Load(ctx, size)
	if err != nil {
		g.fail(fmt.Errorf("load model %s: %w", size, err))
		return
	}

	g.mu.Lock()
	g.model = model
	g.status = Status{State: StateReady, Size: size, Progress: 1}
	g.mu.Unlock()
}

func (g *Generator) fail(err error) {
	g.logger("bootstrap: %v", err)
	g.mu.Lock()
	size := g.status.Size
	g.mu.Unlock()
	g.setState(Status{State: StateFailed, Err: err, Size: size})
}

func (g *Generator) detectMemOrDefault() (int, error) {
	if g.detectMem == nil {
		return 16, nil
	}
	return g.detectMem()
}

// FailRuntime transitions a Ready generator to Failed after a runtime
// error (e.g. an inference call panicked or returned a fatal error). This
// is the one allowed backward transition in an otherwise monotonic state
// machine (spec.md §3 GeneratorState invariant).
func (g *Generator) FailRuntime(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status.State != StateReady {
		return
	}
	g.model = nil
	g.status = Status{State: StateFailed, Err: err, Size: g.status.Size}
}

// pollInterval is how long scenario tests may wait for an async state
// transition; exported so external test harnesses can reuse the same
// cadence spec.md's "within 2 seconds" scenario checks against.
const PollInterval = 10 * time.Millisecond
