// Package brain implements the speculative background "brain" of
// spec.md §5: while the human is composing a message, a restricted
// read-only agent loop races ahead to gather context so the final
// reply can start the instant the human submits.
//
// Composition is grounded directly on two existing teacher packages:
// internal/debounce.Debouncer[T] supplies the fire-on-silence timer
// (reset on every keystroke, firing once typing goes quiet), and
// internal/typing.TypingController supplies the sealed/idempotent
// cancellation state machine this package copies for run cancellation.
// The restricted loop itself is an internal/agent.AgenticLoop wired
// with a read-only tool registry (read/glob/grep and ask_user_question
// only — no writes, no bash) per spec.md §5's sandboxing requirement.
package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/cache"
	"github.com/forgehq/forge/internal/debounce"
	"github.com/forgehq/forge/internal/memtree"
	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/internal/sessions"
	"github.com/forgehq/forge/pkg/models"
)

// DedupeWindow is how long an identical typed prefix is suppressed
// from re-triggering a speculative run for the same session — a human
// pausing mid-word on an unchanged buffer (e.g. a stalled network
// keystroke replay) shouldn't burn a second provider call.
const DedupeWindow = 2 * time.Second

// RetrievalCount is how many memory-tree hits are folded into the
// speculative task as prior context (spec.md §4.7: the brain consults
// memory the same way the real turn would, so its draft reply doesn't
// miss what the human already established).
const RetrievalCount = 3

// MaxIterations bounds the speculative loop's tool-call rounds. Kept
// low because the run is thrown away unless the human's final message
// lines up with what was speculated.
const MaxIterations = 7

// MaxRunDuration is the hard wall-clock budget for a speculative run.
const MaxRunDuration = 45 * time.Second

// SilenceDelay is how long the human must stop typing before the brain
// fires, passed straight through to debounce.Debouncer.
const SilenceDelay = 1500 * time.Millisecond

// Result is what a speculative run produced, ready to be either
// discarded or folded into the real turn as hidden context.
type Result struct {
	SessionID string
	Draft     string
	Context   string // rendered as a <context>...</context> block
	Err       error
}

// Brain runs a debounced, cancellable, read-only speculative agent
// loop per session.
type Brain struct {
	loop     *agent.AgenticLoop
	sessions *sessions.MemoryStore
	debounce *debounce.Debouncer[typedText]
	logger   *observability.Logger
	tree     *memtree.Tree
	dedupe   *cache.DedupeCache

	mu      sync.Mutex
	runs    map[string]*run
	onReady func(Result)
}

type typedText struct {
	sessionID string
	text      string
}

// run tracks one session's in-flight speculative attempt. sealed
// mirrors typing.TypingController's sealed flag: once true, no further
// state transitions or callbacks for this run are honored, so a cancel
// racing a completion can never resurrect or double-deliver a result.
type run struct {
	cancel        context.CancelFunc
	sealed        bool
	preserveDraft bool // true when cancellation came from submit, not typing
}

// Config configures a Brain.
type Config struct {
	Provider agent.LLMProvider
	Registry *agent.ToolRegistry // pre-populated with read-only tools
	Logger   *observability.Logger

	// MemTree, if set, is consulted for each speculative run so its
	// task is seeded with the same prior context a real turn would see.
	// Retrieval failures are logged and otherwise ignored — a brain run
	// with no memory augmentation is still better than none at all.
	MemTree *memtree.Tree
}

// New constructs a Brain. Registry must already contain only read-only
// tools (read, glob, grep, ask_user_question) — Brain does not enforce
// this itself, matching the teacher's pattern of trusting caller-built
// registries elsewhere in this codebase.
func New(cfg Config) *Brain {
	loopCfg := &agent.LoopConfig{
		MaxIterations: MaxIterations,
		MaxWallTime:   MaxRunDuration,
		MaxTokens:     2048,
	}
	store := sessions.NewMemoryStore()
	loop := agent.NewAgenticLoop(cfg.Provider, cfg.Registry, store, loopCfg)

	b := &Brain{
		loop:     loop,
		sessions: store,
		logger:   cfg.Logger,
		tree:     cfg.MemTree,
		dedupe:   cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: DedupeWindow, MaxSize: 256}),
		runs:     make(map[string]*run),
	}
	b.debounce = debounce.NewDebouncer[typedText](
		debounce.WithDebounceDuration[typedText](SilenceDelay),
		debounce.WithBuildKey[typedText](func(item *typedText) string { return item.sessionID }),
		debounce.WithOnFlush[typedText](func(items []*typedText) error {
			if len(items) == 0 {
				return nil
			}
			latest := items[len(items)-1]
			b.fire(latest.sessionID, latest.text)
			return nil
		}),
	)
	return b
}

// OnReady registers a callback invoked with the speculative result
// once a run completes (successfully, by error, or is superseded).
func (b *Brain) OnReady(fn func(Result)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReady = fn
}

// OnKeystroke feeds partial input for sessionID into the debouncer,
// resetting its silence timer. Call on every inbound keystroke/delta.
func (b *Brain) OnKeystroke(sessionID, partialText string) {
	b.Cancel(sessionID, false)
	b.debounce.Enqueue(&typedText{sessionID: sessionID, text: partialText})
}

// Submit is called when the human sends their message. Any
// in-flight speculative run for sessionID is cancelled but its
// partial context is preserved rather than discarded, since the
// human's final text may still overlap with what was being gathered.
func (b *Brain) Submit(sessionID string) {
	b.Cancel(sessionID, true)
}

// Cancel stops sessionID's in-flight run if any. preserveDraft
// distinguishes a submit-triggered cancel (keep partial context) from
// a typing-triggered cancel (discard it outright, since the human kept
// typing and invalidated the speculation).
func (b *Brain) Cancel(sessionID string, preserveDraft bool) {
	b.mu.Lock()
	r, ok := b.runs[sessionID]
	if ok {
		r.preserveDraft = r.preserveDraft || preserveDraft
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
}

func (b *Brain) fire(sessionID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if b.dedupe != nil && b.dedupe.Check(sessionID+"\x00"+text) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), MaxRunDuration)
	r := &run{cancel: cancel}

	b.mu.Lock()
	b.runs[sessionID] = r
	b.mu.Unlock()

	go b.runSpeculative(ctx, sessionID, text, r)
}

// runSpeculative takes r, the exact run object fire() created, rather
// than re-fetching it from b.runs by sessionID — a later run for the
// same session can replace that map entry while this goroutine is
// still in flight, and acting on whatever happens to be in the map at
// deliver time would let a stale goroutine speak for the wrong run.
func (b *Brain) runSpeculative(ctx context.Context, sessionID, text string, r *run) {
	defer b.sealAndRemove(sessionID, r)

	session, err := b.sessions.Get(ctx, sessionID)
	if err != nil {
		session = &models.Session{ID: sessionID}
		if err := b.sessions.Create(ctx, session); err != nil {
			b.deliver(r, Result{SessionID: sessionID, Err: err})
			return
		}
	}
	msg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   b.augmentWithMemory(ctx, text),
	}

	chunks, err := b.loop.Run(ctx, session, msg)
	if err != nil {
		b.deliver(r, Result{SessionID: sessionID, Err: err})
		return
	}

	var sb strings.Builder
	for chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		if chunk.Error != nil {
			b.deliver(r, Result{SessionID: sessionID, Err: chunk.Error})
			return
		}
		sb.WriteString(chunk.Text)
	}

	draft := sb.String()
	if ctx.Err() != nil && !b.shouldPreserve(r) {
		return
	}
	b.deliver(r, Result{
		SessionID: sessionID,
		Draft:     draft,
		Context:   renderContextBlock(draft),
	})
}

// augmentWithMemory prepends the top RetrievalCount memory-tree hits
// for text as prior context, falling back to the raw text unchanged if
// no tree is configured or retrieval finds nothing.
func (b *Brain) augmentWithMemory(ctx context.Context, text string) string {
	if b.tree == nil {
		return text
	}
	hits, err := b.tree.Retrieve(ctx, text, RetrievalCount)
	if err != nil || len(hits) == 0 {
		if err != nil && b.logger != nil {
			b.logger.Warn(ctx, "brain memory retrieval failed", "error", err)
		}
		return text
	}
	var sb strings.Builder
	sb.WriteString("<memory>\n")
	for _, h := range hits {
		sb.WriteString("- ")
		sb.WriteString(h.Node.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("</memory>\n\n")
	sb.WriteString(text)
	return sb.String()
}

func (b *Brain) shouldPreserve(r *run) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.preserveDraft
}

// sealAndRemove seals r so any deliver call racing this return is a
// no-op, and drops sessionID's map entry only if it still points at r
// (a newer run may already have replaced it).
func (b *Brain) sealAndRemove(sessionID string, r *run) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r.sealed = true
	if current, ok := b.runs[sessionID]; ok && current == r {
		delete(b.runs, sessionID)
	}
}

func (b *Brain) deliver(r *run, res Result) {
	b.mu.Lock()
	sealed := r.sealed
	handler := b.onReady
	b.mu.Unlock()
	if sealed {
		return
	}
	if handler != nil {
		handler(res)
	}
}

// Shutdown stops the debouncer and lets any in-flight runs finish on
// their own context deadlines.
func (b *Brain) Shutdown() {
	b.debounce.Stop()
}

// renderContextBlock wraps speculative findings in the hidden
// <context> tag spec.md §5 specifies for folding brain output into the
// real turn's system context without it being mistaken for a reply.
func renderContextBlock(draft string) string {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return ""
	}
	return fmt.Sprintf("<context>\n%s\n</context>", draft)
}
