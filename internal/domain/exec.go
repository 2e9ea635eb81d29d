package domain

import "context"

// ExecNamespace is a persistent code-evaluation environment. Variables and
// functions defined by one Run are visible to later Runs against the same
// namespace. A namespace is scoped to a single turn and must be closed when
// the turn ends.
//
// Run never fails: runtime faults in the executed source are captured and
// rendered into the returned output text. The orchestrator cannot retry an
// execution, so this is a hard contract.
type ExecNamespace interface {
	Run(ctx context.Context, source string) string
	Close()
}

// ExecProvider creates evaluation namespaces.
type ExecProvider interface {
	NewNamespace() (ExecNamespace, error)
	Name() string
}
