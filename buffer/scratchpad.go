package buffer

import (
	"fmt"

	"github.com/andreheringer/LocustDB/types"
)

// Ref is a type-tagged handle operators use to refer to scratchpad
// storage without holding a pointer to it directly; resolution happens
// against a Scratchpad at execute time. Keeping plan nodes referencing
// ids rather than buffer objects breaks potential reference cycles (see
// the grouping-key wiring in the planner package).
type Ref struct {
	ID   int
	Type types.EncodingType
}

func (r Ref) String() string { return fmt.Sprintf("$%d:%s", r.ID, r.Type) }

// Scratchpad is the arena of named, typed buffers shared by the
// operators of a single partition-query execution. Every buffer has
// exactly one writer; any number of operators may hold concurrent
// read-only borrows (enforced here only by convention, since a single
// partition's operators run single-threaded - see package vm).
type Scratchpad struct {
	buffers map[int]*Buffer
	pinned  []*Buffer
	nextID  int
}

// NewScratchpad returns an empty scratchpad.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{buffers: make(map[int]*Buffer)}
}

// Alloc reserves a fresh buffer id of the given encoding without
// allocating storage; operators call Init to materialize the buffer
// during the planner-driven init pass (see vm.Operator.Init).
func (s *Scratchpad) Alloc(enc types.EncodingType) Ref {
	id := s.nextID
	s.nextID++
	return Ref{ID: id, Type: enc}
}

// Init materializes capHint rows of storage for ref and registers it.
// It is a fatal error to Init the same ref twice.
func (s *Scratchpad) Init(ref Ref, capHint int) {
	if _, ok := s.buffers[ref.ID]; ok {
		panic(fmt.Sprintf("scratchpad: buffer %v already initialized", ref))
	}
	s.buffers[ref.ID] = New(ref.Type, capHint)
}

// Set installs buf as the storage for ref, overwriting the prior
// contents. Used by operators at the end of each streamed chunk.
func (s *Scratchpad) Set(ref Ref, buf *Buffer) {
	s.buffers[ref.ID] = buf
}

// Get resolves ref against the scratchpad. It is a fatal error (a
// planner invariant violation) for ref to be unresolved at this point.
func (s *Scratchpad) Get(ref Ref) *Buffer {
	b, ok := s.buffers[ref.ID]
	if !ok {
		panic(fmt.Sprintf("scratchpad: buffer %v never initialized", ref))
	}
	return b
}

// Clear empties the contents of ref's buffer while keeping it
// registered, so that on the next streamed chunk downstream consumers
// observe a fresh, empty batch (see Operator.Execute's streaming
// contract).
func (s *Scratchpad) Clear(ref Ref) {
	b := s.Get(ref)
	s.buffers[ref.ID] = New(b.Encoding, 0)
}

// Pin transfers ownership of ref's buffer out of the scratchpad into
// the final query result so it outlives this Scratchpad; used for
// string buffers whose arena must survive past DAG execution.
func (s *Scratchpad) Pin(ref Ref) *Buffer {
	b := s.Get(ref)
	s.pinned = append(s.pinned, b)
	return b
}

// Pinned returns every buffer transferred via Pin, in pin order.
func (s *Scratchpad) Pinned() []*Buffer { return s.pinned }
