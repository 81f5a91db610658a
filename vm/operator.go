// Package vm implements the vector operator library and the executor
// that runs a planner-built DAG of operators against a scratchpad of
// typed buffers, one partition-query at a time.
package vm

import (
	"fmt"

	"github.com/andreheringer/LocustDB/buffer"
)

// Operator is one node of the dataflow DAG the planner builds. Every
// operator declares its buffer dependencies by id (Inputs/Outputs)
// rather than holding pointers to scratchpad storage directly, so the
// DAG has no reference cycles.
type Operator interface {
	fmt.Stringer

	// Inputs/Outputs list the scratchpad buffers this operator reads
	// from and writes to.
	Inputs() []buffer.Ref
	Outputs() []buffer.Ref

	// CanStreamInput/CanStreamOutput report whether input i (resp.
	// output i) can be consumed/produced one batch-sized chunk at a
	// time without the operator needing the whole partition resident
	// at once. An executor chains streaming end-to-end where every
	// link supports it; see Executor.
	CanStreamInput(i int) bool
	CanStreamOutput(i int) bool

	// Allocates reports whether this operator owns newly allocated
	// scratchpad memory (true for every operator except pure
	// pass-through wiring).
	Allocates() bool

	// Init pre-allocates this operator's outputs with an expected
	// capacity, given the partition length and the configured batch
	// size.
	Init(partitionLen, batchSize int, sp *buffer.Scratchpad)

	// Execute runs the operator over the current chunk (the whole
	// partition when streaming is false). Implementations that
	// maintain cross-chunk state (sort, group, aggregate) must be
	// idempotent-safe to call with streaming=false exactly once.
	Execute(streaming bool, sp *buffer.Scratchpad) error
}

// baseOp factors the bookkeeping every concrete operator needs
// (declared inputs/outputs, streaming flags) so operator
// implementations only need to provide Init/Execute/String.
type baseOp struct {
	name             string
	inputs, outputs  []buffer.Ref
	streamIn, stream bool
	allocates        bool
}

func (b *baseOp) Inputs() []buffer.Ref         { return b.inputs }
func (b *baseOp) Outputs() []buffer.Ref        { return b.outputs }
func (b *baseOp) CanStreamInput(int) bool      { return b.streamIn }
func (b *baseOp) CanStreamOutput(int) bool     { return b.stream }
func (b *baseOp) Allocates() bool              { return b.allocates }
func (b *baseOp) String() string               { return b.name }
