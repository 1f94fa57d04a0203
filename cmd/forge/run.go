package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/feedback"
	"github.com/forgehq/forge/internal/gateway"
	"github.com/forgehq/forge/internal/memtree"
	"github.com/forgehq/forge/internal/router"
	"github.com/forgehq/forge/pkg/models"
)

// interruptExitErr carries exit code 130 (128 + SIGINT), the conventional
// shell signal for an interrupted foreground process.
type interruptExitErr struct{}

func (interruptExitErr) Error() string { return "interrupted" }
func (interruptExitErr) ExitCode() int { return 130 }

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return ctx, cancel
}

// runQuery drives a single prompt through the configured provider's
// agent loop and prints the assembled response to stdout.
func runQuery(cmd *cobra.Command, configPath string, cloudOnly bool, sessionID, text string) error {
	st, err := buildStack(configPath, cloudOnly)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	reply, err := ask(ctx, st, sessionID, text)
	if err != nil {
		if ctx.Err() != nil {
			return interruptExitErr{}
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

// runDaemon starts the OpenAI-compatible HTTP gateway until interrupted.
func runDaemon(cmd *cobra.Command, configPath string, cloudOnly bool, bind string) error {
	st, err := buildStack(configPath, cloudOnly)
	if err != nil {
		return err
	}
	defer st.Close()

	pidPath, sockPath := forgeDaemonPaths()
	if pidPath != "" {
		if err := writePidFile(pidPath); err != nil {
			slog.Warn("failed to write daemon pidfile", "path", pidPath, "error", err)
		} else {
			defer removePidFile(pidPath)
		}
	}
	if sockPath != "" {
		// daemon.sock marks the daemon's presence for local tooling
		// (spec.md §6 local state layout); the HTTP surface itself is
		// served over bind, not this socket, so the file is a touch-only
		// marker cleaned up on exit rather than a second listener.
		if err := touchSocketMarker(sockPath); err != nil {
			slog.Warn("failed to write daemon.sock marker", "path", sockPath, "error", err)
		} else {
			defer os.Remove(sockPath)
		}
	}

	server := gateway.NewServer(gateway.Config{
		Providers: st.providers,
		Loops:     st.loops,
		Default:   st.defaultID,
	})

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	slog.Info("forge daemon listening", "addr", bind, "default_provider", st.defaultID)
	if err := server.ListenAndServe(ctx, bind); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return interruptExitErr{}
	}
	return nil
}

// runREPL starts an interactive line-based session: each line read from
// stdin is sent through the agent loop, with replies printed as they
// arrive. Ctrl-D or Ctrl-C ends the session.
func runREPL(cmd *cobra.Command, configPath string, cloudOnly bool) error {
	st, err := buildStack(configPath, cloudOnly)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	const sessionID = "repl"
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "forge %s (provider: %s) — Ctrl-D to exit\n", version, st.defaultID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastQuery, lastReply string
	haveLastTurn := false

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}
		if strings.HasPrefix(line, "/allow ") || strings.HasPrefix(line, "/deny ") {
			handleRememberCommand(out, st, line)
			continue
		}
		if handleFeedbackCommand(out, st, line, lastQuery, lastReply, haveLastTurn) {
			continue
		}

		reply, err := ask(ctx, st, sessionID, line)
		if ctx.Err() != nil {
			return interruptExitErr{}
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
		lastQuery, lastReply = line, reply
		haveLastTurn = true
	}
	return scanner.Err()
}

// handleFeedbackCommand implements the REPL's "/good", "/great", and
// "/bad" commands, the interactive surface for spec.md §6's
// training-feedback queue: each records the most recently completed
// turn into training_queue.jsonl with the corresponding LoRA example
// weight (1, 3, or 10). Returns false (and does nothing) for any line
// that isn't one of these commands, so callers can chain it after
// their own prefix checks.
func handleFeedbackCommand(out io.Writer, st *stack, line, lastQuery, lastReply string, haveLastTurn bool) bool {
	var weight feedback.Weight
	var note string
	switch {
	case line == "/good" || strings.HasPrefix(line, "/good "):
		weight = feedback.WeightGood
		note = strings.TrimPrefix(strings.TrimPrefix(line, "/good"), " ")
	case line == "/great" || strings.HasPrefix(line, "/great "):
		weight = feedback.WeightGreat
		note = strings.TrimPrefix(strings.TrimPrefix(line, "/great"), " ")
	case line == "/bad" || strings.HasPrefix(line, "/bad "):
		weight = feedback.WeightNormal
		note = strings.TrimPrefix(strings.TrimPrefix(line, "/bad"), " ")
	default:
		return false
	}

	if !haveLastTurn {
		fmt.Fprintln(out, "no completed turn yet to record feedback for")
		return true
	}
	if st.feedback == nil {
		fmt.Fprintln(out, "feedback queue not configured")
		return true
	}
	if err := st.feedback.Record(lastQuery, lastReply, weight, note); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return true
	}
	fmt.Fprintln(out, "recorded feedback")
	return true
}

// handleRememberCommand implements the REPL's "/allow" and "/deny"
// commands, the interactive surface for spec.md §4.2's remembered
// once/for-session/by-pattern/persistently tool approvals:
//
//	/allow bash:git *            remember for this session only (default)
//	/allow bash:git * pattern    remember as a persisted wildcard pattern
//	/deny write persistent       remember "denied" forever, exact tool name
func handleRememberCommand(out io.Writer, st *stack, line string) {
	if st.approval == nil {
		fmt.Fprintln(out, "approval checker not configured")
		return
	}
	decision := agent.ApprovalAllowed
	rest := strings.TrimPrefix(line, "/allow ")
	if strings.HasPrefix(line, "/deny ") {
		decision = agent.ApprovalDenied
		rest = strings.TrimPrefix(line, "/deny ")
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		fmt.Fprintln(out, "usage: /allow|/deny <tool-or-pattern> [once|session|pattern|persistent]")
		return
	}

	scope := agent.RememberSession
	pattern := rest
	if len(fields) > 1 {
		switch agent.RememberScope(fields[len(fields)-1]) {
		case agent.RememberOnce, agent.RememberSession, agent.RememberPattern, agent.RememberPersistent:
			scope = agent.RememberScope(fields[len(fields)-1])
			pattern = strings.Join(fields[:len(fields)-1], " ")
		}
	}

	if err := st.approval.Remember(scope, pattern, decision); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "remembered %s for %q (%s)\n", decision, pattern, scope)
}

// ask resolves sessionID against st's session store (creating it on
// first use, matching the brain package's same lazy-create pattern),
// consults the router for a local-vs-forward decision, runs the chosen
// provider's agent loop, records the outcome back into the router so
// its learned success rates improve over time, and persists both
// sides of the exchange into the memory tree (spec.md §4.4, §4.6).
func ask(ctx context.Context, st *stack, sessionID, text string) (string, error) {
	target, provider := chooseProvider(st, text)
	loop, ok := st.loops[provider]
	if !ok {
		return "", fmt.Errorf("no provider configured")
	}

	session, err := st.sessions.Get(ctx, sessionID)
	if err != nil {
		session = &models.Session{ID: sessionID}
		if err := st.sessions.Create(ctx, session); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	}

	msg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   augmentWithMemory(ctx, st.tree, text),
	}

	reply, runErr := runTurn(ctx, loop, session, msg)

	if st.router != nil {
		if target == router.TargetLocal {
			st.router.LearnLocalAttempt(text, runErr == nil)
		} else {
			st.router.LearnForwarded(text)
		}
	}
	if runErr != nil {
		return "", runErr
	}

	recallTurn(ctx, st.tree, text, reply)
	return reply, nil
}

// chooseProvider asks the router for a local-vs-forward decision and
// maps it onto a configured provider ID. A forward decision, or the
// absence of a dedicated local provider, falls back to defaultID.
func chooseProvider(st *stack, text string) (router.Target, string) {
	if st.router == nil || st.localID == "" {
		return router.TargetForward, st.defaultID
	}
	decision := st.router.Route(text)
	if decision.Target == router.TargetLocal {
		return router.TargetLocal, st.localID
	}
	return router.TargetForward, st.defaultID
}

// runTurn drives the agent loop for a single message and collects the
// streamed reply into one string.
func runTurn(ctx context.Context, loop *agent.AgenticLoop, session *models.Session, msg *models.Message) (string, error) {
	chunks, err := loop.Run(ctx, session, msg)
	if err != nil {
		return "", err
	}
	var reply strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		reply.WriteString(chunk.Text)
	}
	return reply.String(), nil
}

// augmentWithMemory prepends the tree's top hits for query as prior
// context, the same retrieval-augmentation shape brain.Brain applies to
// its speculative runs (spec.md §4.6). Falls back to the raw query on
// any retrieval error or empty tree.
func augmentWithMemory(ctx context.Context, tree *memtree.Tree, query string) string {
	if tree == nil {
		return query
	}
	hits, err := tree.Retrieve(ctx, query, 3)
	if err != nil || len(hits) == 0 {
		if err != nil {
			slog.Warn("memtree retrieve failed", "error", err)
		}
		return query
	}
	var sb strings.Builder
	sb.WriteString("<memory>\n")
	for _, h := range hits {
		sb.WriteString("- ")
		sb.WriteString(h.Node.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("</memory>\n\n")
	sb.WriteString(query)
	return sb.String()
}

// recallTurn persists the completed exchange into the memory tree so
// later queries can retrieve it (spec.md §4.6). Insert failures are
// logged, not propagated — a missed memory write must never fail the
// turn that produced it.
func recallTurn(ctx context.Context, tree *memtree.Tree, query, reply string) {
	if tree == nil {
		return
	}
	if _, _, err := tree.Insert(ctx, query, memtree.ClassifyImportance(query, false)); err != nil {
		slog.Warn("memtree insert (query) failed", "error", err)
	}
	if _, _, err := tree.Insert(ctx, reply, memtree.ClassifyImportance(reply, false)); err != nil {
		slog.Warn("memtree insert (reply) failed", "error", err)
	}
}
