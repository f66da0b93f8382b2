package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultPollInterval is the fixed delay between run status checks.
const DefaultPollInterval = 5 * time.Second

// releaseAttempts bounds the polls spent waiting for a cancelled run to stop.
const releaseAttempts = 6

// Action is what the poll loop does after observing a run status.
type Action int

const (
	ActionContinue Action = iota
	ActionReturnMessage
	ActionReturnToolPayload
	ActionSoftFail
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionReturnMessage:
		return "return_message"
	case ActionReturnToolPayload:
		return "return_tool_payload"
	case ActionSoftFail:
		return "soft_fail"
	case ActionFatal:
		return "fatal"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decide maps an observed run status and the time spent polling to the
// next action. Terminal statuses win over the timeout. A non-positive
// timeout never expires.
func Decide(status assistant.RunStatus, elapsed, timeout time.Duration) Action {
	switch status {
	case assistant.RunStatusCompleted:
		return ActionReturnMessage
	case assistant.RunStatusRequiresAction:
		return ActionReturnToolPayload
	case assistant.RunStatusFailed:
		return ActionFatal
	case assistant.RunStatusCancelled, assistant.RunStatusExpired, assistant.RunStatusIncomplete:
		return ActionSoftFail
	}
	if timeout > 0 && elapsed > timeout {
		return ActionSoftFail
	}
	return ActionContinue
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OutcomeKind classifies a finished poll.
type OutcomeKind int

const (
	// OutcomeMessage carries the assistant's latest message text.
	OutcomeMessage OutcomeKind = iota
	// OutcomeToolCall carries the arguments of a requested tool call.
	OutcomeToolCall
	// OutcomeProceed means the run ended without an answer (timeout,
	// cancelled, expired, incomplete); the caller moves on.
	OutcomeProceed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMessage:
		return "message"
	case OutcomeToolCall:
		return "tool_call"
	case OutcomeProceed:
		return "proceed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of driving one run.
type Outcome struct {
	Kind OutcomeKind
	// Text is the message text, or the raw JSON arguments of a tool call.
	Text string
	// Arguments holds the decoded tool-call arguments, nil if they were
	// not valid JSON.
	Arguments any
	ToolCall  *assistant.ToolCall
	Run       *assistant.Run
	// Reason explains a proceed outcome: the run status or "timeout".
	Reason string
}

// Poller drives a single run from submission to a terminal state.
type Poller struct {
	svc      assistant.Service
	clock    Clock
	interval time.Duration
	schemas  map[string]*gojsonschema.Schema
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithToolSchemas sets the argument schemas used to validate tool calls,
// keyed by function name.
func WithToolSchemas(schemas map[string]*gojsonschema.Schema) PollerOption {
	return func(p *Poller) { p.schemas = schemas }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerMetrics records run timings into c.
func WithPollerMetrics(c *metrics.Collector) PollerOption {
	return func(p *Poller) { p.metrics = c }
}

// NewPoller creates a Poller with a 5 second interval and the wall clock.
func NewPoller(svc assistant.Service, opts ...PollerOption) *Poller {
	p := &Poller{
		svc:      svc,
		clock:    realClock{},
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run submits a run of assistantID on threadID and polls until it reaches
// a terminal state or timeout elapses. A failed run returns a
// *RunFailedError. On timeout the remote run is abandoned, not cancelled,
// so it may keep running server-side.
func (p *Poller) Run(ctx context.Context, threadID, assistantID string, timeout time.Duration) (Outcome, error) {
	start := p.clock.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordTiming(metrics.OpRun, p.clock.Now().Sub(start))
		}
	}()

	run, err := p.svc.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("create run: %w", err)
	}
	log := p.logger.With("thread_id", threadID, "run_id", run.ID)

	for {
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return Outcome{}, err
		}

		run, err = p.svc.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("poll run: %w", err)
		}
		elapsed := p.clock.Now().Sub(start)

		action := Decide(run.Status, elapsed, timeout)
		log.Debug("run polled", "status", run.Status, "elapsed", elapsed, "action", action)

		switch action {
		case ActionContinue:
			continue
		case ActionReturnMessage:
			return p.latestMessage(ctx, threadID, run)
		case ActionReturnToolPayload:
			return p.toolPayload(ctx, threadID, run)
		case ActionFatal:
			return Outcome{Run: run}, runFailed(run)
		default:
			reason := string(run.Status)
			if !isTerminal(run.Status) {
				reason = "timeout"
				log.Warn("run timed out, abandoning poll; the remote run may still be active",
					append(runSnapshot(run), "elapsed", elapsed, "timeout", timeout)...)
			} else {
				log.Warn("run ended without an answer",
					append(runSnapshot(run), "elapsed", elapsed)...)
			}
			return Outcome{Kind: OutcomeProceed, Run: run, Reason: reason}, nil
		}
	}
}

func (p *Poller) latestMessage(ctx context.Context, threadID string, run *assistant.Run) (Outcome, error) {
	msgs, err := p.svc.ListMessages(ctx, threadID, 1)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch answer: %w", err)
	}
	if len(msgs) == 0 {
		return Outcome{}, fmt.Errorf("fetch answer: thread %s has no messages", threadID)
	}
	return Outcome{Kind: OutcomeMessage, Text: msgs[0].Text(), Run: run}, nil
}

func (p *Poller) toolPayload(ctx context.Context, threadID string, run *assistant.Run) (Outcome, error) {
	ra := run.RequiredAction
	if ra == nil || ra.SubmitToolOutputs == nil || len(ra.SubmitToolOutputs.ToolCalls) == 0 {
		return Outcome{}, fmt.Errorf("run %s requires action but carries no tool call", run.ID)
	}
	call := ra.SubmitToolOutputs.ToolCalls[0]
	out := Outcome{Kind: OutcomeToolCall, Text: call.Function.Arguments, ToolCall: &call, Run: run}

	log := p.logger.With("run_id", run.ID, "function", call.Function.Name)
	if err := json.Unmarshal([]byte(call.Function.Arguments), &out.Arguments); err != nil {
		log.Warn("tool call arguments are not valid JSON", "error", err)
		out.Arguments = nil
	} else {
		p.validateArguments(log, call)
	}

	p.release(ctx, threadID, run.ID)
	return out, nil
}

// validateArguments checks tool call arguments against the declared
// schema. Violations are logged only.
func (p *Poller) validateArguments(log *slog.Logger, call assistant.ToolCall) {
	schema, ok := p.schemas[call.Function.Name]
	if !ok {
		return
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(call.Function.Arguments))
	if err != nil {
		log.Warn("validate tool call arguments", "error", err)
		return
	}
	for _, e := range result.Errors() {
		log.Warn("tool call argument violates schema", "field", e.Field(), "detail", e.Description())
	}
}

// release cancels a run that stopped for a tool call so the thread accepts
// new messages. Best effort.
func (p *Poller) release(ctx context.Context, threadID, runID string) {
	ctx = context.WithoutCancel(ctx)
	log := p.logger.With("thread_id", threadID, "run_id", runID)

	run, err := p.svc.CancelRun(ctx, threadID, runID)
	if err != nil {
		log.Warn("cancel run after tool call", "error", err)
		return
	}
	for range releaseAttempts {
		if isTerminal(run.Status) {
			return
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return
		}
		if run, err = p.svc.RetrieveRun(ctx, threadID, runID); err != nil {
			log.Warn("poll cancelled run", "error", err)
			return
		}
	}
	log.Warn("run still active after cancel", "status", run.Status)
}

func isTerminal(s assistant.RunStatus) bool {
	switch s {
	case assistant.RunStatusCompleted, assistant.RunStatusFailed, assistant.RunStatusCancelled,
		assistant.RunStatusExpired, assistant.RunStatusIncomplete:
		return true
	}
	return false
}

func runFailed(run *assistant.Run) error {
	e := &RunFailedError{RunID: run.ID, Message: "no error detail"}
	if run.LastError != nil {
		e.Code = run.LastError.Code
		e.Message = run.LastError.Message
	}
	return e
}

// runSnapshot flattens every state field of a run into slog arguments.
func runSnapshot(run *assistant.Run) []any {
	args := []any{
		"status", run.Status,
		"assistant_id", run.AssistantID,
		"model", run.Model,
		"created_at", run.CreatedAt,
	}
	stamp := func(key string, v *int64) {
		if v != nil {
			args = append(args, key, *v)
		}
	}
	stamp("started_at", run.StartedAt)
	stamp("expires_at", run.ExpiresAt)
	stamp("cancelled_at", run.CancelledAt)
	stamp("failed_at", run.FailedAt)
	stamp("completed_at", run.CompletedAt)
	if run.LastError != nil {
		args = append(args, "last_error_code", run.LastError.Code, "last_error", run.LastError.Message)
	}
	return args
}
