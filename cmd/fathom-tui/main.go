// ABOUTME: Interactive terminal client for the fathom research backend.
// ABOUTME: Drives chat, plan review, and execution through the conversation orchestrator.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fathom/internal/api"
	"github.com/2389/fathom/internal/config"
	"github.com/2389/fathom/internal/conversation"
	"github.com/2389/fathom/internal/history"
	"github.com/2389/fathom/internal/render"
	"github.com/2389/fathom/internal/session"
	"github.com/2389/fathom/internal/stream"
)

const dialTimeout = 10 * time.Second

var (
	noticeStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed)
	dimStyle    = color.New(color.Faint)
	okStyle     = color.New(color.FgGreen)
	titleStyle  = color.New(color.FgCyan, color.Bold)
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Config file path")
	server := flag.String("server", "", "Backend server URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Server.URL = *server
	}

	logger := setupLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	fmt.Printf("fathom connected to %s\n", cfg.Server.URL)
	fmt.Println("Type a message and press Enter. /research toggles deep research. /help for commands.")
	fmt.Println()

	if err := a.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// setupLogger builds the process logger at the configured level. Logs go to
// stderr so they never interleave with transcript output.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// app wires the client, history store, and orchestrator behind the input loop.
type app struct {
	cfg    *config.Config
	client *api.Client
	store  *history.Store
	orch   *conversation.Orchestrator
	db     *history.SQLiteStore
	logger *slog.Logger

	channel      *stream.Channel
	streaming    bool
	deepResearch bool

	// printed tracks how much of each session's transcript has been shown
	printed map[string]int
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store := history.NewStore(logger)

	var db *history.SQLiteStore
	if cfg.Database.Path != "" {
		var err error
		db, err = history.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		if err := db.Restore(ctx, store); err != nil {
			return nil, fmt.Errorf("restoring history: %w", err)
		}
	}

	client := api.NewClient(cfg.Server.URL, logger)
	orch := conversation.New(client, store, conversation.Options{
		EnableCache:   cfg.Research.EnableCache,
		FormatPlan:    render.PlanMarkdown,
		FormatMetrics: render.MetricsLine,
		Logger:        logger,
	})

	a := &app{
		cfg:       cfg,
		client:    client,
		store:     store,
		orch:      orch,
		db:        db,
		logger:    logger.With("component", "tui"),
		streaming: cfg.Streaming.Enabled,
		printed:   make(map[string]int),
	}

	// The restored transcript has already been seen in a previous run.
	a.markPrinted(store.Active())
	return a, nil
}

func (a *app) close() {
	a.closeChannel()
	if a.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.Snapshot(ctx, a.store); err != nil {
			a.logger.Warn("final snapshot failed", "error", err)
		}
		a.db.Close()
	}
}

// run is the interactive loop. Input is read on a goroutine so Ctrl+C
// interrupts a pending prompt.
func (a *app) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(a.prompt())

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			// An empty submit during plan review sends the prefill, so
			// pressing Enter on a fresh plan approves it.
			if prefill := a.orch.Prefill(); prefill != "" && a.orch.Phase().Kind == conversation.PhasePlanReview {
				input = prefill
				fmt.Println(dimStyle.Sprintf("(%s)", prefill))
			} else {
				continue
			}
		}

		if strings.HasPrefix(input, "/") {
			if quit := a.command(ctx, input); quit {
				return nil
			}
			continue
		}

		a.submit(ctx, input)
		fmt.Println()
	}
}

// prompt reflects the current phase and the deep-research toggle.
func (a *app) prompt() string {
	switch a.orch.Phase().Kind {
	case conversation.PhasePlanReview:
		return titleStyle.Sprint("[plan]") + "> "
	default:
		if a.deepResearch {
			return titleStyle.Sprint("[research]") + "> "
		}
		return "> "
	}
}

// command dispatches a slash command. Returns true to exit the loop.
func (a *app) command(ctx context.Context, input string) bool {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		printHelp()

	case "/research":
		a.deepResearch = !a.deepResearch
		if a.deepResearch {
			fmt.Println(noticeStyle.Sprint("Deep research on: your next message proposes a research plan."))
		} else {
			fmt.Println("Deep research off.")
		}

	case "/stream":
		a.streaming = !a.streaming
		if a.streaming {
			fmt.Println(noticeStyle.Sprint("Streaming on: plain chat uses the live channel."))
		} else {
			a.closeChannel()
			fmt.Println("Streaming off.")
		}

	case "/new":
		a.newSession(ctx)

	case "/sessions":
		a.listSessions()

	case "/open":
		a.openSession(ctx, args)

	case "/plan":
		a.showPlan()

	case "/health":
		a.health(ctx)

	default:
		fmt.Println(errorStyle.Sprintf("Unknown command %s. /help for commands.", cmd))
	}

	fmt.Println()
	return false
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /research      Toggle deep research for outgoing messages")
	fmt.Println("  /plan          Show the plan currently under review")
	fmt.Println("  /new           Archive this session and start a fresh one")
	fmt.Println("  /sessions      List archived sessions")
	fmt.Println("  /open <n|id>   Reopen an archived session")
	fmt.Println("  /stream        Toggle the live chat channel")
	fmt.Println("  /health        Check backend status")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
	fmt.Println()
	fmt.Println("During plan review, reply \"start\" to run the plan, \"cancel\" to")
	fmt.Println("discard it, or describe changes to refine it. Enter alone accepts.")
}

// submit sends free-text input through the orchestrator, preferring the
// streaming channel for plain chat when enabled.
func (a *app) submit(ctx context.Context, input string) {
	inReview := a.orch.Phase().Kind == conversation.PhasePlanReview

	if a.streaming && !a.deepResearch && !inReview {
		if a.submitStreaming(ctx, input) {
			return
		}
		// Channel unavailable, fall through to the one-shot path.
	}

	if !inReview && a.deepResearch {
		fmt.Println(dimStyle.Sprint("Proposing a research plan..."))
	}
	if inReview && strings.EqualFold(input, conversation.AcceptSentinel) {
		fmt.Println(dimStyle.Sprint("Researching. This can take several minutes."))
	}

	if err := a.orch.Submit(ctx, input, a.deepResearch); err != nil {
		a.reportRejection(err)
		return
	}
	a.flush()
}

// submitStreaming sends one chat message over the live channel and prints
// frames as they arrive. Returns false when the channel cannot be used so the
// caller falls back to the one-shot path.
func (a *app) submitStreaming(ctx context.Context, input string) bool {
	if a.channel == nil {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		ch, err := stream.DialChat(dialCtx, a.client.BaseURL(), a.store.Active().ID, a.logger)
		cancel()
		if err != nil {
			a.logger.Warn("stream dial failed", "error", err)
			fmt.Println(dimStyle.Sprint("Live channel unavailable, using standard connection."))
			return false
		}
		a.channel = ch
	}

	if err := a.orch.NoteStreamSend(input); err != nil {
		a.reportRejection(err)
		return true
	}

	if err := a.channel.Send(ctx, input, false); err != nil {
		a.orch.AbortStream(err)
		a.closeChannel()
		a.markPrinted(a.store.Active())
		fmt.Println(noticeStyle.Sprint("Live channel lost, using standard connection."))
		fmt.Println()
		return true
	}

	a.consumeFrames(ctx)
	return true
}

// consumeFrames prints streamed content until the turn ends or the channel
// closes. Transcript bookkeeping happens in the orchestrator's frame hook.
func (a *app) consumeFrames(ctx context.Context) {
	frames := a.channel.Frames()
	for {
		select {
		case <-ctx.Done():
			a.orch.AbortStream(ctx.Err())
			a.closeChannel()
			a.markPrinted(a.store.Active())
			return

		case <-a.channel.Done():
			a.orch.AbortStream(a.channel.Err())
			a.channel = nil
			a.markPrinted(a.store.Active())
			fmt.Println()
			fmt.Println(noticeStyle.Sprint("The streaming connection was lost. Your next message will use the standard connection."))
			fmt.Println()
			return

		case raw, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			a.orch.HandleFrame(raw)
			if done := a.printFrame(raw); done {
				a.markPrinted(a.store.Active())
				fmt.Println()
				return
			}
		}
	}
}

// printFrame renders one inbound frame for display. Returns true when the
// turn is finished.
func (a *app) printFrame(raw json.RawMessage) bool {
	var f struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return false
	}

	switch f.Type {
	case "status":
		if f.Message != "" {
			fmt.Println(dimStyle.Sprintf("[%s]", f.Message))
		}
	case "message", "report":
		content := f.Content
		if content == "" {
			content = f.Message
		}
		fmt.Print(content)
	case "done":
		fmt.Println()
		return true
	case "error":
		msg := f.Message
		if msg == "" {
			msg = "The streaming channel reported an error."
		}
		fmt.Println()
		fmt.Println(errorStyle.Sprint(msg))
		return true
	}
	return false
}

func (a *app) newSession(ctx context.Context) {
	if _, err := a.orch.NewSession(); err != nil {
		a.reportRejection(err)
		return
	}
	a.closeChannel()
	a.snapshot(ctx)
	fmt.Println("Started a new session.")
}

func (a *app) listSessions() {
	archived := a.store.Archived()
	if len(archived) == 0 {
		fmt.Println("No archived sessions.")
		return
	}
	fmt.Println("Archived sessions:")
	for i, sess := range archived {
		fmt.Printf("  %d. %s  %s\n", i+1, sess.Title,
			dimStyle.Sprintf("(%d messages, %s)", len(sess.Messages), sess.Timestamp.Format("2006-01-02 15:04")))
	}
}

// openSession reactivates an archived session by list number or id prefix.
func (a *app) openSession(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Println(errorStyle.Sprint("Usage: /open <number|id>"))
		return
	}

	id := arg
	archived := a.store.Archived()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(archived) {
			fmt.Println(errorStyle.Sprintf("No session %d. /sessions to list.", n))
			return
		}
		id = archived[n-1].ID
	} else {
		for _, sess := range archived {
			if strings.HasPrefix(sess.ID, arg) {
				id = sess.ID
				break
			}
		}
	}

	sess, err := a.orch.OpenSession(id)
	if err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			fmt.Println(errorStyle.Sprint("Session not found. /sessions to list."))
		} else {
			a.reportRejection(err)
		}
		return
	}

	a.closeChannel()
	a.snapshot(ctx)

	fmt.Println(titleStyle.Sprint(sess.Title))
	a.printed[sess.ID] = 0
	a.flush()
}

func (a *app) showPlan() {
	phase := a.orch.Phase()
	if phase.Kind != conversation.PhasePlanReview {
		fmt.Println("No plan under review.")
		return
	}
	fmt.Print(render.Terminal(render.PlanMarkdown(phase.Plan)))
}

func (a *app) health(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	health, err := a.client.Health(reqCtx)
	if err != nil {
		fmt.Println(errorStyle.Sprintf("Backend unreachable: %v", err))
		return
	}

	fmt.Printf("Backend %s (%s)\n", okStyle.Sprint(health.Status), health.Version)
	for name, status := range health.Services {
		fmt.Printf("  %s: %s\n", name, status)
	}
}

// flush prints transcript entries not yet shown for the active session.
func (a *app) flush() {
	sess := a.store.Active()
	msgs := sess.Messages
	for _, msg := range msgs[a.printed[sess.ID]:] {
		switch msg.Role {
		case session.RoleUser:
			fmt.Println(dimStyle.Sprintf("you: %s", msg.Content))
		case session.RoleAssistant:
			fmt.Print(render.Terminal(msg.Content))
		}
	}
	a.printed[sess.ID] = len(msgs)
}

// markPrinted skips display of transcript entries already shown by another
// path, such as streamed frames.
func (a *app) markPrinted(sess *session.Session) {
	a.printed[sess.ID] = len(sess.Messages)
}

func (a *app) snapshot(ctx context.Context) {
	if a.db == nil {
		return
	}
	if err := a.db.Snapshot(ctx, a.store); err != nil {
		a.logger.Warn("snapshot failed", "error", err)
	}
}

func (a *app) closeChannel() {
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
}

// reportRejection explains an orchestrator rejection. Network failures never
// surface here; those become assistant messages in the transcript.
func (a *app) reportRejection(err error) {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		fmt.Println(noticeStyle.Sprint("Still working on the previous request."))
	case errors.Is(err, conversation.ErrEmptyInput):
		// Nothing to do
	case errors.Is(err, conversation.ErrNoPlanReview):
		fmt.Println(errorStyle.Sprint("No plan is under review."))
	default:
		fmt.Println(errorStyle.Sprintf("Error: %v", err))
	}
}
