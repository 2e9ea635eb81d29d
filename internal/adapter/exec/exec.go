// Package exec implements the code-execution capability behind the
// domain.ExecProvider interface using the yaegi Go interpreter. Each
// namespace wraps a persistent interpreter so definitions survive across
// executions within one turn; execution faults are captured as output text,
// never returned as errors.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/parser"
	"log/slog"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"toolseek/internal/domain"
)

// emptyOutput is returned for executions that produce no output at all, so
// the model always sees a non-empty result block.
const emptyOutput = "(no output)"

// preamble pre-imports the packages snippets are expected to use bare, so
// the model can write fmt.Println(...) without an import clause.
const preamble = `import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)`

// Provider creates yaegi-backed execution namespaces.
type Provider struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewProvider returns an execution provider. timeout bounds the wall clock
// of a single Run; zero means no bound.
func NewProvider(timeout time.Duration, logger *slog.Logger) *Provider {
	return &Provider{timeout: timeout, logger: logger}
}

// Name implements domain.ExecProvider.
func (p *Provider) Name() string { return "yaegi" }

// NewNamespace implements domain.ExecProvider. The returned namespace holds
// a fresh interpreter with the stdlib symbols loaded and the preamble
// imported.
func (p *Provider) NewNamespace() (domain.ExecNamespace, error) {
	ns := &namespace{timeout: p.timeout, logger: p.logger}
	ns.interp = interp.New(interp.Options{Stdout: &ns.out, Stderr: &ns.out})
	if err := ns.interp.Use(stdlib.Symbols); err != nil {
		return nil, domain.WrapOp("exec: load stdlib", fmt.Errorf("%w: %v", domain.ErrExecUnavailable, err))
	}
	if _, err := ns.interp.Eval(preamble); err != nil {
		return nil, domain.WrapOp("exec: import preamble", fmt.Errorf("%w: %v", domain.ErrExecUnavailable, err))
	}
	ns.out.Reset()
	return ns, nil
}

type namespace struct {
	interp  *interp.Interpreter
	out     bytes.Buffer
	timeout time.Duration
	logger  *slog.Logger
}

// Run implements domain.ExecNamespace. Expression-first: a source that
// parses as a single expression and prints nothing has its value rendered,
// so bare expressions like 2+2 work without an explicit print. Any fault
// (compile error, runtime panic, timeout) is rendered into the returned
// text; Run never fails.
func (ns *namespace) Run(ctx context.Context, source string) (result string) {
	source = strings.TrimSpace(source)
	if source == "" {
		return emptyOutput
	}

	ns.out.Reset()
	defer func() {
		if r := recover(); r != nil {
			result = appendTrace(ns.out.String(), fmt.Sprintf("panic: %v", r))
			if ns.logger != nil {
				ns.logger.Warn("interpreter panic recovered", "panic", r)
			}
		}
	}()

	if ns.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ns.timeout)
		defer cancel()
	}

	_, parseErr := parser.ParseExpr(source)
	isExpr := parseErr == nil

	v, err := ns.interp.EvalWithContext(ctx, source)
	out := ns.out.String()

	switch {
	case err != nil:
		out = appendTrace(out, renderFault(err))
	case out == "" && isExpr && v.IsValid():
		out = fmt.Sprintf("%v", v)
	}

	if strings.TrimSpace(out) == "" {
		return emptyOutput
	}
	return out
}

// Close implements domain.ExecNamespace. The interpreter holds no external
// resources; dropping the reference is enough.
func (ns *namespace) Close() {}

// renderFault formats an interpreter error the way a failed run should read
// in an output block. Interpreted panics include the interpreter stack.
func renderFault(err error) string {
	var p interp.Panic
	if errors.As(err, &p) {
		return fmt.Sprintf("panic: %v\n%s", p.Value, p.Stack)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "execution timed out"
	}
	return "error: " + err.Error()
}

func appendTrace(out, trace string) string {
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out + trace
}

var _ domain.ExecProvider = (*Provider)(nil)
