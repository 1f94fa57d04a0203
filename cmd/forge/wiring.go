package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/bootstrap"
	"github.com/forgehq/forge/internal/brain"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/feedback"
	"github.com/forgehq/forge/internal/memtree"
	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/internal/router"
	"github.com/forgehq/forge/internal/sessions"
	"github.com/forgehq/forge/internal/tools/exec"
	"github.com/forgehq/forge/internal/tools/files"
	"github.com/forgehq/forge/internal/tools/interact"
	"github.com/forgehq/forge/internal/tools/memtool"
	"github.com/forgehq/forge/internal/tools/sandbox"
	"github.com/forgehq/forge/internal/tools/search"
	"github.com/forgehq/forge/internal/tools/todo"
)

// stack bundles everything a command needs to drive the agent loop: the
// configured providers, one AgenticLoop per provider (sharing a single
// session store and tool registry), the router deciding local vs.
// forward per query, the bootstrap generator the router reads
// readiness from, the memory tree every turn is persisted into, the
// brain speculating ahead of submission, and the interaction manager
// the TUI (or a plain REPL) polls for ask_user_question/present_plan
// answers.
type stack struct {
	cfg       *config.Config
	providers map[string]agent.LLMProvider
	loops     map[string]*agent.AgenticLoop
	sessions  sessions.Store
	tree      *memtree.Tree
	interact  *interact.Manager
	router    *router.Router
	generator *bootstrap.Generator
	brain     *brain.Brain
	watcher   *config.ContextWatcher
	approval  *agent.ApprovalChecker
	feedback  *feedback.Queue
	localID   string
	defaultID string
}

// Close releases background resources the stack started: the
// project-instructions file watcher and the training-feedback queue's
// file handle. Safe to call with either unset.
func (s *stack) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.feedback != nil {
		_ = s.feedback.Close()
	}
}

// buildStack loads configuration from configPath and wires the standard
// tool inventory (spec §4.2) plus one AgenticLoop per configured
// provider. cloudOnly, when true, drops the "local" provider entry so
// every query is forwarded (used by the --cloud-only flag).
func buildStack(configPath string, cloudOnly bool) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	provEntries := cfg.ProvidersConfig
	if cloudOnly {
		filtered := provEntries.Providers[:0:0]
		for _, e := range provEntries.Providers {
			if e.Type != config.ProviderLocal {
				filtered = append(filtered, e)
			}
		}
		provEntries.Providers = filtered
	}

	llmProviders, err := buildProviders(&provEntries)
	if err != nil {
		return nil, err
	}
	if len(llmProviders) == 0 {
		return nil, fmt.Errorf("no providers configured (see providers: in %s)", configPath)
	}

	localID := ""
	defaultID := ""
	for _, e := range provEntries.Providers {
		id := e.Name
		if id == "" {
			id = string(e.Type)
		}
		if _, ok := llmProviders[id]; !ok {
			continue
		}
		if e.Type == config.ProviderLocal {
			localID = id
			continue
		}
		if defaultID == "" {
			defaultID = id
		}
	}
	if defaultID == "" {
		// Every configured provider is local (or cloudOnly stripped
		// everything else); fall back to it so the stack always has
		// somewhere to forward to.
		defaultID = localID
	}

	workspace := cfg.Workspace.Path
	if workspace == "" {
		workspace = "."
	}

	stateDir := forgeStateDir()
	tree, err := buildMemTree(stateDir)
	if err != nil {
		return nil, fmt.Errorf("build memory tree: %w", err)
	}

	registry, interactMgr := buildToolRegistry(cfg, workspace, tree)

	systemPrompt := config.RenderProjectInstructions(homeDirOrEmpty(), workspace)

	patternStore, err := agent.LoadPatternStore(toolPatternsPath(stateDir))
	if err != nil {
		return nil, fmt.Errorf("load tool patterns: %w", err)
	}
	approvalChecker := agent.NewApprovalChecker(nil)
	approvalChecker.SetPatternStore(patternStore)

	store := sessions.NewMemoryStore()
	loopCfg := &agent.LoopConfig{
		MaxIterations:   25,
		MaxTokens:       4096,
		ApprovalChecker: approvalChecker,
	}

	loops := make(map[string]*agent.AgenticLoop, len(llmProviders))
	for id, provider := range llmProviders {
		loop := agent.NewAgenticLoop(provider, registry, store, loopCfg)
		if systemPrompt != "" {
			loop.SetDefaultSystem(systemPrompt)
		}
		loops[id] = loop
	}

	// Bootstrap drives the local model's own readiness state machine.
	// The ONNX/Candle tensor kernels themselves are an external
	// collaborator per spec.md §1 ("treated as a LocalModel
	// capability"); no CacheChecker/Downloader/Loader is wired here, so
	// the generator settles into NotAvailable and the router forwards
	// every query with ReasonModelNotReady until a real engine is
	// plugged in via bootstrap.New's interfaces.
	generator := bootstrap.New(nil, nil, nil, nil, bootstrap.WithLogger(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "bootstrap: "+format+"\n", args...)
	}))
	generator.Start(context.Background())

	rtr := router.New(router.DefaultConfig(), generator)
	if stateDir != "" {
		rtrStore := router.NewStore(filepath.Join(stateDir, "router_stats.json"))
		rtr.AttachStore(rtrStore)
		_ = rtrStore.LoadInto(rtr)
	}

	brainInstance := buildBrain(llmProviders, defaultID, workspace, tree)

	feedbackQueue, err := feedback.Open(trainingQueuePath(stateDir))
	if err != nil {
		return nil, fmt.Errorf("open training queue: %w", err)
	}

	// Live-reload CLAUDE.md/FORGE.md: a long-running REPL or daemon
	// process should pick up project-instruction edits made in another
	// editor without a restart. Every configured loop's system prompt is
	// re-rendered on change.
	watcher := config.NewContextWatcher(homeDirOrEmpty(), workspace, func(rendered string) {
		for _, loop := range loops {
			loop.SetDefaultSystem(rendered)
		}
	}, nil)
	if err := watcher.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "context watcher: failed to start: %v\n", err)
		watcher = nil
	}

	return &stack{
		cfg:       cfg,
		providers: llmProviders,
		loops:     loops,
		sessions:  store,
		tree:      tree,
		interact:  interactMgr,
		router:    rtr,
		generator: generator,
		brain:     brainInstance,
		watcher:   watcher,
		approval:  approvalChecker,
		feedback:  feedbackQueue,
		localID:   localID,
		defaultID: defaultID,
	}, nil
}

// toolPatternsPath returns the path to spec.md §6's tool_patterns.json
// under stateDir, or "" (an in-memory-only PatternStore) when stateDir
// is unset.
func toolPatternsPath(stateDir string) string {
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, "tool_patterns.json")
}

// trainingQueuePath returns the path to spec.md §6's training_queue.jsonl
// under stateDir, or "" (a no-op queue) when stateDir is unset.
func trainingQueuePath(stateDir string) string {
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, "training_queue.jsonl")
}

// buildBrain wires a restricted, read-only speculative loop (spec.md
// §4.7) off the same provider the REPL would otherwise forward to —
// the brain races ahead on whatever provider is already configured as
// default, since it never needs the local-vs-forward decision itself
// (a wrong guess there is thrown away, not shown to the human).
func buildBrain(providers map[string]agent.LLMProvider, defaultID, workspace string, tree *memtree.Tree) *brain.Brain {
	provider, ok := providers[defaultID]
	if !ok {
		return nil
	}
	registry := agent.NewToolRegistry()
	filesCfg := files.Config{Workspace: workspace, MaxReadBytes: 256 * 1024}
	registry.Register(files.NewReadTool(filesCfg))
	registry.Register(search.NewGlobTool(workspace))
	registry.Register(search.NewGrepTool(workspace))

	return brain.New(brain.Config{
		Provider: provider,
		Registry: registry,
		Logger:   observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text"}),
		MemTree:  tree,
	})
}

// buildMemTree opens (or creates) the persistent hierarchical memory
// tree at stateDir/memory.db per spec.md §6's local state layout,
// falling back to an in-memory-only tree if stateDir is empty (e.g. no
// resolvable home directory).
func buildMemTree(stateDir string) (*memtree.Tree, error) {
	embedder := memtree.NewTFIDFEmbedder(256)
	if stateDir == "" {
		return memtree.New(memtree.Config{Embedder: embedder})
	}
	dbPath := filepath.Join(stateDir, "memory.db")
	backend, err := memtree.OpenSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store at %s: %w", dbPath, err)
	}
	return memtree.Load(context.Background(), memtree.Config{Embedder: embedder, Store: backend})
}

func forgeStateDir() string {
	home := homeDirOrEmpty()
	if home == "" {
		return ""
	}
	dir := filepath.Join(home, ".forge")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func homeDirOrEmpty() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// buildToolRegistry assembles the standard tool inventory (spec §4.2):
// file read/write/edit, glob/grep search, shell exec, a per-session todo
// list, memory-tree writes, and the ask/plan interaction tools the loop
// intercepts directly for user-facing prompts. It returns the interact
// manager alongside the registry since the REPL needs the same instance
// to answer those prompts.
func buildToolRegistry(cfg *config.Config, workspace string, tree *memtree.Tree) (*agent.ToolRegistry, *interact.Manager) {
	registry := agent.NewToolRegistry()

	filesCfg := files.Config{Workspace: workspace, MaxReadBytes: 256 * 1024}
	registry.Register(files.NewReadTool(filesCfg))
	registry.Register(files.NewWriteTool(filesCfg))
	registry.Register(files.NewEditTool(filesCfg))
	registry.Register(files.NewApplyPatchTool(filesCfg))

	registry.Register(search.NewGlobTool(workspace))
	registry.Register(search.NewGrepTool(workspace))

	execManager := exec.NewManager(workspace)
	registry.Register(exec.NewExecTool("exec", execManager))
	registry.Register(exec.NewProcessTool(execManager))

	if cfg.Tools.Sandbox.Enabled {
		if sandboxExecutor, err := sandbox.BuildExecutor(cfg.Tools.Sandbox, workspace); err != nil {
			logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text"})
			logger.Warn(context.Background(), "sandbox executor unavailable, execute_code tool not registered", "error", err)
		} else {
			registry.Register(sandboxExecutor)
		}
	}

	todoList := todo.NewList()
	registry.Register(todo.NewWriteTool(todoList))
	registry.Register(todo.NewReadTool(todoList))

	registry.Register(memtool.NewCreateMemoryTool(tree))

	interactMgr := interact.NewManager()
	registry.Register(interact.NewAskUserQuestionTool(interactMgr))
	registry.Register(interact.NewPresentPlanTool(interactMgr))

	return registry, interactMgr
}
