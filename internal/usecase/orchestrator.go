// Package usecase contains the tool-loop orchestrator: the control flow that
// turns one client-visible chat turn into a series of upstream sub-requests,
// executing tagged code blocks found in the model's reasoning and splicing
// their output back into the continuation prefix.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"toolseek/internal/domain"
	"toolseek/internal/infra/tracer"
	"toolseek/internal/scanner"
)

// instruction describes the code-execution convention to the model. It is
// appended to the latest user message rather than sent as a system message,
// which keeps the convention active even when callers supply their own
// system prompt.
const instruction = `You can run Go code while you think. Write the code between <code> and </code> tags inside your reasoning; the runtime executes it and splices the result back between <output> and </output> tags. Variables persist between blocks within the same reply. A bare expression on its own prints its value. When your reasoning is complete, write </think> on its own line and then give the final answer.`

// seedPrefix is a short worked example that seeds the assistant continuation.
// It biases the model toward actually using the convention. It is part of the
// prefix from the start but is never forwarded to the client.
const seedPrefix = "<think>\nLet me check that the runtime works.\n<code>\n1 + 1\n</code>\n<output>\n2\n</output>\nIt does. Now to the user's question.\n"

// Deps holds injected dependencies for the orchestrator.
type Deps struct {
	LLM         domain.StreamingLLMProvider
	Exec        domain.ExecProvider
	Logger      *slog.Logger
	Tokens      *TokenEstimator // optional, nil = no token estimates
	MaxRestarts int
}

// Orchestrator drives the tool loop for chat turns.
type Orchestrator struct {
	deps    Deps
	metrics Metrics
}

// New creates an orchestrator with the given dependencies.
func New(deps Deps) *Orchestrator {
	if deps.MaxRestarts <= 0 {
		deps.MaxRestarts = 32
	}
	return &Orchestrator{deps: deps}
}

// Metrics returns a snapshot of the orchestrator's counters.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	return o.metrics.Snapshot()
}

// turnState tracks the progress of one client turn across upstream restarts.
// prefix only grows; sent is a cursor into prefix marking what has already
// been delivered, so nothing is ever forwarded twice. While a code region is
// open, incoming text is appended to the prefix but withheld from the client
// (sent lags) and mirrored into codeBuf for execution.
type turnState struct {
	prefix       string
	sent         int
	ns           domain.ExecNamespace
	thinkingOpen bool
	restarts     int

	codeOpen bool
	codeBuf  strings.Builder
}

// RunTurn processes one chat turn and returns a finite stream of deltas,
// terminated by a Done delta or a single final delta carrying Err. The
// provided messages are the full conversation; the last one is expected to
// be the user message for this turn. Cancelling ctx abandons the in-flight
// upstream sub-request and releases the execution namespace.
func (o *Orchestrator) RunTurn(ctx context.Context, req domain.ChatRequest) <-chan domain.StreamDelta {
	out := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(out)
		o.runTurn(ctx, req, out)
	}()
	return out
}

func (o *Orchestrator) runTurn(ctx context.Context, req domain.ChatRequest, out chan<- domain.StreamDelta) {
	turnID := ulid.Make().String()
	ctx = domain.ContextWithTurnID(ctx, turnID)
	logger := o.deps.Logger.With("turn_id", turnID)

	ctx, span := tracer.StartSpan(ctx, "turn",
		trace.WithAttributes(tracer.StringAttr("turn.id", turnID)),
	)
	defer span.End()

	o.metrics.turns.Add(1)
	logger.Info("turn started", "messages", len(req.Messages))

	ns, err := o.deps.Exec.NewNamespace()
	if err != nil {
		tracer.RecordError(span, err)
		o.fail(ctx, out, fmt.Errorf("create execution namespace: %w", err))
		return
	}
	defer ns.Close()

	state := &turnState{
		prefix:       seedPrefix,
		sent:         len(seedPrefix),
		ns:           ns,
		thinkingOpen: true,
	}

	for {
		action, err := o.runSubRequest(ctx, req, state, logger, out)
		switch {
		case err != nil:
			tracer.RecordError(span, err)
			o.metrics.upstreamErrors.Add(1)
			o.fail(ctx, out, err)
			return
		case action == actionRestart:
			state.restarts++
			o.metrics.restarts.Add(1)
			if state.restarts > o.deps.MaxRestarts {
				err := fmt.Errorf("%w: %d restarts", domain.ErrMaxRestarts, state.restarts)
				tracer.RecordError(span, err)
				o.fail(ctx, out, err)
				return
			}
		case action == actionDone:
			tracer.SetOK(span)
			logger.Info("turn completed",
				"restarts", state.restarts,
				"prefix_len", len(state.prefix),
			)
			o.emit(ctx, out, domain.StreamDelta{Done: true})
			return
		}
	}
}

// subAction is the outcome of one upstream sub-request.
type subAction int

const (
	actionDone subAction = iota
	actionRestart
)

// runSubRequest issues one upstream request seeded with the current prefix
// and consumes its deltas until the stream ends, a code block completes, or
// the end-of-reasoning marker arrives. The latter two request a restart
// after advancing the prefix, which is what makes execution idempotent: the
// next sub-request continues past the executed block and the upstream never
// re-emits it.
func (o *Orchestrator) runSubRequest(ctx context.Context, req domain.ChatRequest, state *turnState, logger *slog.Logger, out chan<- domain.StreamDelta) (subAction, error) {
	ctx, span := tracer.StartSpan(ctx, "turn.sub_request",
		trace.WithAttributes(tracer.IntAttr("turn.restart", state.restarts)),
	)
	defer span.End()

	subReq := o.buildRequest(req, state)
	if o.deps.Tokens != nil {
		logger.Debug("sub-request issued",
			"restart", state.restarts,
			"prefix_tokens", o.deps.Tokens.Count(state.prefix),
		)
	}

	ch, err := o.deps.LLM.ChatStream(ctx, subReq)
	if err != nil {
		tracer.RecordError(span, err)
		return actionDone, err
	}

	if !state.thinkingOpen {
		action, err := o.forwardAnswer(ctx, ch, state, out)
		if err != nil {
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		return action, err
	}

	sc := scanner.New()
	for delta := range ch {
		if delta.Err != nil {
			tracer.RecordError(span, delta.Err)
			return actionDone, delta.Err
		}
		if delta.Done {
			// Reasoning ended without the end marker. Flush whatever the
			// scanner still holds as plain text and finish the turn.
			for _, ev := range sc.Flush() {
				o.handleText(ctx, state, ev.Text, out)
			}
			o.flushSent(ctx, state, out)
			tracer.SetOK(span)
			return actionDone, nil
		}

		text := delta.Reasoning + delta.Content
		if text == "" {
			continue
		}
		for _, ev := range sc.Feed(text) {
			action, stop := o.handleEvent(ctx, state, ev, logger, out)
			if stop {
				tracer.SetOK(span)
				return action, nil
			}
		}
	}

	// Channel closed without a terminal delta (cancelled context).
	return actionDone, ctx.Err()
}

// handleEvent applies the region policy for one scanner event. It returns
// stop=true when the sub-request must be abandoned (restart or turn end).
func (o *Orchestrator) handleEvent(ctx context.Context, state *turnState, ev scanner.Event, logger *slog.Logger, out chan<- domain.StreamDelta) (subAction, bool) {
	if ev.Kind == scanner.EventText {
		o.handleText(ctx, state, ev.Text, out)
		return 0, false
	}

	switch {
	case ev.Tag == scanner.TagCode && !ev.Closing:
		// Opening a code region: the raw tag joins the prefix but stays
		// withheld until the block completes.
		state.prefix += ev.Text
		state.codeOpen = true
		state.codeBuf.Reset()

	case ev.Tag == scanner.TagCode && ev.Closing:
		o.executeBlock(ctx, state, ev.Text, logger, out)
		return actionRestart, true

	case ev.Tag == scanner.TagOutput:
		// Model-authored output delimiters pass through as ordinary text.
		state.prefix += ev.Text
		if !state.codeOpen {
			o.flushSent(ctx, state, out)
		}

	case ev.Tag == scanner.TagThink && ev.Closing:
		// End of reasoning. Forward what remains, skip the marker itself,
		// and restart once more so the model produces the answer.
		o.flushSent(ctx, state, out)
		state.prefix += ev.Text
		state.sent = len(state.prefix)
		state.thinkingOpen = false
		logger.Debug("reasoning complete", "prefix_len", len(state.prefix))
		return actionRestart, true
	}
	return 0, false
}

// handleText appends scanned text to the prefix. Text inside an open code
// region is withheld from the client and collected for execution; anything
// else is forwarded immediately.
func (o *Orchestrator) handleText(ctx context.Context, state *turnState, text string, out chan<- domain.StreamDelta) {
	if text == "" {
		return
	}
	state.prefix += text
	if state.codeOpen {
		state.codeBuf.WriteString(text)
		return
	}
	o.flushSent(ctx, state, out)
}

// executeBlock runs the source collected since the opening code tag, splices
// the captured output into the prefix as an output block, and forwards the
// whole finalized span (withheld code, delimiters, output) at once.
func (o *Orchestrator) executeBlock(ctx context.Context, state *turnState, closingRaw string, logger *slog.Logger, out chan<- domain.StreamDelta) {
	ctx, span := tracer.StartSpan(ctx, "turn.execute")
	defer span.End()

	source := state.codeBuf.String()
	state.codeBuf.Reset()
	state.codeOpen = false
	state.prefix += closingRaw

	output := state.ns.Run(ctx, source)
	o.metrics.executions.Add(1)
	logger.Debug("code block executed",
		"source_len", len(source),
		"output_len", len(output),
	)

	state.prefix += formatOutputBlock(output)
	o.flushSent(ctx, state, out)
	tracer.SetOK(span)
}

// flushSent forwards the unsent suffix of the prefix as one reasoning delta
// and advances the cursor.
func (o *Orchestrator) flushSent(ctx context.Context, state *turnState, out chan<- domain.StreamDelta) {
	if state.sent >= len(state.prefix) {
		return
	}
	text := state.prefix[state.sent:]
	state.sent = len(state.prefix)
	o.emit(ctx, out, domain.StreamDelta{Reasoning: text})
}

// forwardAnswer relays post-reasoning deltas to the client unmodified.
func (o *Orchestrator) forwardAnswer(ctx context.Context, ch <-chan domain.StreamDelta, state *turnState, out chan<- domain.StreamDelta) (subAction, error) {
	for delta := range ch {
		if delta.Err != nil {
			return actionDone, delta.Err
		}
		if delta.Done {
			return actionDone, nil
		}
		if delta.Content == "" && delta.Reasoning == "" {
			continue
		}
		state.prefix += delta.Reasoning + delta.Content
		state.sent = len(state.prefix)
		o.emit(ctx, out, delta)
	}
	return actionDone, ctx.Err()
}

// buildRequest synthesizes the upstream message list: the prior conversation
// with the tool instruction appended to the latest user message, plus a
// trailing assistant continuation carrying the prefix.
func (o *Orchestrator) buildRequest(req domain.ChatRequest, state *turnState) domain.ChatRequest {
	lastUser := -1
	for i, m := range req.Messages {
		if m.Role == domain.RoleUser {
			lastUser = i
		}
	}

	msgs := make([]domain.Message, 0, len(req.Messages)+1)
	for i, m := range req.Messages {
		if i == lastUser {
			m.Content = m.Content + "\n\n" + instruction
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, domain.Message{
		Role:    domain.RoleAssistant,
		Content: state.prefix,
		Prefix:  true,
	})

	sub := req
	sub.Messages = msgs
	sub.Stream = true
	return sub
}

// formatOutputBlock renders captured execution output as an output-region
// block ready for splicing into the prefix.
func formatOutputBlock(output string) string {
	return "\n<output>\n" + strings.TrimRight(output, "\n") + "\n</output>\n"
}

func (o *Orchestrator) fail(ctx context.Context, out chan<- domain.StreamDelta, err error) {
	o.deps.Logger.Error("turn failed", "error", err)
	o.emit(ctx, out, domain.StreamDelta{Done: true, Err: err})
}

func (o *Orchestrator) emit(ctx context.Context, out chan<- domain.StreamDelta, d domain.StreamDelta) {
	select {
	case out <- d:
	case <-ctx.Done():
	}
}
