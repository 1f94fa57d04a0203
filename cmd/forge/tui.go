package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forgehq/forge/internal/router"
	"github.com/forgehq/forge/internal/tools/interact"
	"github.com/forgehq/forge/internal/tui"
	"github.com/forgehq/forge/pkg/models"
)

// runInteractive picks between the full dual-layer TUI and the plain
// line-based REPL depending on whether stdout is a real terminal — a
// pipe or redirect gets the REPL's simple scrollback, matching the
// teacher's own terminal-capability gate at promptPassword's
// term.IsTerminal check in cmd/nexus.
func runInteractive(cmd *cobra.Command, configPath string, cloudOnly bool) error {
	stdoutFd := os.Stdout.Fd()
	if !isatty.IsTerminal(stdoutFd) && !isatty.IsCygwinTerminal(stdoutFd) {
		return runREPL(cmd, configPath, cloudOnly)
	}
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return runREPL(cmd, configPath, cloudOnly)
	}
	return runTUI(cmd, configPath, cloudOnly, stdinFd)
}

// runTUI drives the dual-layer renderer of spec.md §4.8: a permanent
// scrollback of completed turns plus a fixed-height viewport redrawn
// frame-by-frame, fed by the agent loop's streamed ResponseChunks, the
// speculative brain's debounced typing hook, and ask_user_question /
// present_plan dialogs intercepted from the interact.Manager.
func runTUI(cmd *cobra.Command, configPath string, cloudOnly bool, stdinFd int) error {
	st, err := buildStack(configPath, cloudOnly)
	if err != nil {
		return err
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("enter raw terminal mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	out := colorable.NewColorableStdout()
	width, height, err := term.GetSize(stdinFd)
	if err != nil || width <= 0 || height <= 0 {
		width, height = 80, 24
	}
	viewportHeight := height - 1
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	renderer := tui.NewRenderer(out, width, viewportHeight)
	scrollback := tui.NewScrollback(out)
	scrollback.SetViewportHeight(viewportHeight)

	input := tui.NewInputLoop(bufio.NewReader(os.Stdin))

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	ui := &tuiSession{
		st:         st,
		renderer:   renderer,
		scrollback: scrollback,
		input:      input,
		width:      width,
		height:     viewportHeight,
	}

	if st.interact != nil {
		st.interact.SetAskHandler(ui.onAskRequest)
	}

	go input.Run(ctx)

	return ui.loop(ctx)
}

// tuiSession owns the mutable render state for one interactive
// process: the current line being composed, the in-flight turn's
// WorkUnit (nil between turns), and an optional active dialog awaiting
// an ask_user_question / present_plan answer.
type tuiSession struct {
	st         *stack
	renderer   *tui.Renderer
	scrollback *tui.Scrollback
	input      *tui.InputLoop
	width      int
	height     int

	work   *tui.WorkUnit
	dialog *tui.Dialog
	turnID int
}

func (s *tuiSession) onAskRequest(req *interact.Request) {
	freeform := req.Kind == "question"
	s.dialog = tui.NewDialog(req, freeform)
	s.input.SetDialogMode(true)
	s.render()
}

// loop pumps InputLoop events until EOF, Ctrl-C, or ctx cancellation,
// dispatching submitted text to the agent turn and dialog keys to the
// active ask_user_question/present_plan prompt.
func (s *tuiSession) loop(ctx context.Context) error {
	const sessionID = "tui"
	s.render()

	ticker := time.NewTicker(tui.DefaultTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.work != nil && s.work.Lifecycle == tui.LifecycleInProgress {
				s.render()
			}
		case ev, ok := <-s.input.Events():
			if !ok {
				return nil
			}
			if ev.EOF || ev.Interrupted {
				return nil
			}
			if s.dialog != nil {
				s.handleDialogEvent(ev)
				continue
			}
			s.handleInputEvent(ctx, sessionID, ev)
		}
	}
}

func (s *tuiSession) handleDialogEvent(ev tui.Event) {
	outcome := s.dialog.HandleEvent(ev)
	if outcome.Done {
		req := s.dialog.Request()
		_ = s.st.interact.Answer(req.ID, outcome.Answer)
		s.dialog = nil
		s.input.SetDialogMode(false)
	}
	s.render()
}

func (s *tuiSession) handleInputEvent(ctx context.Context, sessionID string, ev tui.Event) {
	if s.st.brain != nil && ev.IsTyping {
		s.st.brain.OnKeystroke(sessionID, ev.TypingText)
	}
	if !ev.Submitted {
		s.render()
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		s.render()
		return
	}
	if s.st.brain != nil {
		s.st.brain.Submit(sessionID)
	}
	s.runTurn(ctx, sessionID, text)
}

// runTurn streams one query through the router-chosen provider loop,
// rendering the WorkUnit's spinner and sub-rows as tool events arrive,
// then hands the completed exchange to the permanent scrollback.
func (s *tuiSession) runTurn(ctx context.Context, sessionID, text string) {
	s.turnID++
	id := fmt.Sprintf("turn-%d", s.turnID)
	s.work = tui.NewWorkUnit(id, timeNow())
	s.render()

	target, providerID := chooseProvider(s.st, text)
	loop, ok := s.st.loops[providerID]
	if !ok {
		s.finishTurn(ctx, sessionID, text, "", fmt.Errorf("no provider configured"), target)
		return
	}

	session, err := s.st.sessions.Get(ctx, sessionID)
	if err != nil {
		session = &models.Session{ID: sessionID}
		if err := s.st.sessions.Create(ctx, session); err != nil {
			s.finishTurn(ctx, sessionID, text, "", err, target)
			return
		}
	}
	msg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   augmentWithMemory(ctx, s.st.tree, text),
	}

	chunks, err := loop.Run(ctx, session, msg)
	if err != nil {
		s.finishTurn(ctx, sessionID, text, "", err, target)
		return
	}

	var reply strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			s.finishTurn(ctx, sessionID, text, reply.String(), chunk.Error, target)
			return
		}
		if chunk.Text != "" {
			reply.WriteString(chunk.Text)
			s.work.AppendText(chunk.Text)
		}
		if chunk.ToolEvent != nil {
			s.work.UpsertSubRow(chunk.ToolEvent)
		}
		s.render()
	}
	s.finishTurn(ctx, sessionID, text, reply.String(), nil, target)
}

func (s *tuiSession) finishTurn(ctx context.Context, sessionID, query, reply string, err error, target router.Target) {
	if s.st.router != nil {
		if target == router.TargetLocal {
			s.st.router.LearnLocalAttempt(query, err == nil)
		} else {
			s.st.router.LearnForwarded(query)
		}
	}
	if s.work != nil {
		s.work.Complete()
	}
	if err != nil {
		if s.work != nil {
			s.work.AppendText("\nerror: " + err.Error())
		}
	} else {
		recallTurn(ctx, s.st.tree, query, reply)
	}

	if s.work != nil {
		s.scrollback.Emit(s.work.ID, strings.Join(s.work.Render(timeNow()), "\n"))
	}
	s.work = nil
	s.render()
}

func (s *tuiSession) render() {
	status := ""
	if s.dialog != nil {
		status = strings.Join(s.dialog.Render(), " | ")
	}
	inputLine, _ := s.input.Buffer()
	frame := tui.ComposeViewport(s.width, s.height, status, s.work, inputLine, timeNow())
	s.renderer.Render(frame)
}

// timeNow exists only so tuiSession methods read naturally as
// time.Now() without importing the package twice per call site.
func timeNow() time.Time { return time.Now() }
