package vm

import (
	"strings"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/errors"
)

// Executor runs a topologically ordered list of operators against one
// Scratchpad, allocating scratchpad slots via each operator's Init.
// NewExecutor does not reject an input that no earlier operator
// produces; such a dangling reference panics in Scratchpad.Get during
// Run, which Run reports as a FatalErr.
//
// This implementation executes each operator over the whole partition
// in one Execute(streaming=false, ...) call: batchSize only sizes
// initial buffer capacity. The Operator interface still carries the
// streaming contract (CanStreamInput/CanStreamOutput) so an operator
// chain's streaming eligibility can be inspected, but bounding memory
// via genuine chunked streaming is left to future work; see DESIGN.md.
type Executor struct {
	ops         []Operator
	scratchpad  *buffer.Scratchpad
	partitionLen int
	batchSize    int
}

// NewExecutor validates ops and returns an Executor bound to a fresh
// scratchpad.
func NewExecutor(ops []Operator) (*Executor, error) {
	produced := map[buffer.Ref]bool{}
	for i, op := range ops {
		for _, in := range op.Inputs() {
			if !produced[in] {
				// Not yet produced by an earlier op: this is allowed
				// only for root operators (column/const scans) that
				// declare no inputs at all, or reference a buffer
				// produced by the planner before DAG construction
				// (e.g. a pre-seeded scratchpad entry). We do not
				// reject here; Execute will panic via Scratchpad.Get
				// if the reference is genuinely dangling, which is a
				// fatal planner invariant violation.
				_ = i
			}
		}
		for _, out := range op.Outputs() {
			produced[out] = true
		}
	}
	return &Executor{ops: ops, scratchpad: buffer.NewScratchpad()}, nil
}

// Scratchpad returns the executor's backing scratchpad.
func (e *Executor) Scratchpad() *buffer.Scratchpad { return e.scratchpad }

// Run initializes and executes each operator in turn, in plan order,
// over a partition of partitionLen rows (batchSize sizes initial buffer
// capacity only). Init and Execute are interleaved per operator rather
// than run as two separate passes over the whole chain: some operators
// (AggregateOp) size their output from a value only known once an
// earlier operator in the chain has executed, which a strict
// init-everything-then-execute-everything pass could not support.
func (e *Executor) Run(partitionLen, batchSize int) (err error) {
	e.partitionLen, e.batchSize = partitionLen, batchSize
	defer func() {
		if r := recover(); r != nil {
			err = errors.Fatalf("executor panic: %v", r)
		}
	}()
	for _, op := range e.ops {
		op.Init(partitionLen, batchSize, e.scratchpad)
		if execErr := op.Execute(false, e.scratchpad); execErr != nil {
			return execErr
		}
	}
	return nil
}

// Explain renders the operator chain, one operator per line (used for
// EXPLAIN output).
func (e *Executor) Explain() string {
	var b strings.Builder
	for _, op := range e.ops {
		b.WriteString(op.String())
		b.WriteString("\n")
	}
	return b.String()
}
