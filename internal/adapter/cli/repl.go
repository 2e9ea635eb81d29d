package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"toolseek/internal/domain"
)

// REPL is the interactive chat loop against a running relay.
type REPL struct {
	provider domain.StreamingLLMProvider
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
	spinner  bool

	history []domain.Message
}

// Options configures the REPL.
type Options struct {
	In      io.Reader
	Out     io.Writer
	Logger  *slog.Logger
	Spinner bool
}

// NewREPL creates the chat loop. provider should point at the relay's
// chat completions endpoint.
func NewREPL(provider domain.StreamingLLMProvider, opts Options) *REPL {
	return &REPL{
		provider: provider,
		in:       opts.In,
		out:      opts.Out,
		logger:   opts.Logger,
		spinner:  opts.Spinner,
	}
}

// Run reads prompts until EOF or an exit command. Request errors are
// reported inline and do not terminate the loop.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s  (/help for help)\n", StylePrompt.Render("ToolSeek CLI"))
	fmt.Fprintf(r.out, "%s\n\n", StyleMuted.Render("Chat with a model that runs Go code inside its reasoning."))

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprintf(r.out, "%s: ", StylePrompt.Render("You"))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !r.handleSlash(line) {
				break
			}
			continue
		}

		r.history = append(r.history, domain.Message{Role: domain.RoleUser, Content: line})
		reply, err := r.streamTurn(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "\n%s\n", StyleError.Render("Request error: "+err.Error()))
			// Drop the failed user message so the next attempt starts clean.
			r.history = r.history[:len(r.history)-1]
			continue
		}
		r.history = append(r.history, domain.Message{Role: domain.RoleAssistant, Content: reply})
	}

	fmt.Fprintf(r.out, "\n%s\n", StyleMuted.Render("Bye!"))
	return scanner.Err()
}

// streamTurn sends the conversation and renders the streamed reply.
// It returns the accumulated assistant text for the history.
func (r *REPL) streamTurn(ctx context.Context) (string, error) {
	var spin *spinner
	if r.spinner {
		spin = startSpinner(r.out)
	}
	stopSpin := func() {
		if spin != nil {
			spin.Stop()
			spin = nil
		}
	}
	defer stopSpin()

	ch, err := r.provider.ChatStream(ctx, domain.ChatRequest{
		Messages: r.history,
		Stream:   true,
	})
	if err != nil {
		return "", err
	}

	renderer := NewRenderer()
	var accum strings.Builder
	started := false
	answering := false

	for delta := range ch {
		if delta.Err != nil {
			return "", delta.Err
		}
		if delta.Done {
			break
		}
		if !started && (delta.Reasoning != "" || delta.Content != "") {
			stopSpin()
			fmt.Fprintf(r.out, "%s: ", StylePrompt.Render("AI"))
			started = true
		}
		if delta.Reasoning != "" {
			fmt.Fprint(r.out, renderer.RenderReasoning(delta.Reasoning))
			accum.WriteString(delta.Reasoning)
		}
		if delta.Content != "" {
			if !answering {
				answering = true
				fmt.Fprintln(r.out)
			}
			fmt.Fprint(r.out, renderer.RenderContent(delta.Content))
			accum.WriteString(delta.Content)
		}
	}

	fmt.Fprintln(r.out)
	return accum.String(), nil
}

// handleSlash runs a slash command. Returns false to exit the loop.
func (r *REPL) handleSlash(cmd string) bool {
	switch strings.ToLower(strings.TrimPrefix(cmd, "/")) {
	case "exit", "quit":
		return false
	case "clear":
		r.history = nil
		fmt.Fprintf(r.out, "%s\n", StyleMuted.Render("Context cleared."))
	case "help":
		fmt.Fprintf(r.out, "%s - reset conversation\n", StyleCmd.Render("/clear"))
		fmt.Fprintf(r.out, "%s - quit\n", StyleCmd.Render("/exit"))
		fmt.Fprintf(r.out, "%s - this help\n", StyleCmd.Render("/help"))
	default:
		fmt.Fprintf(r.out, "Unknown command: %s\n", cmd)
	}
	return true
}
