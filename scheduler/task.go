// Package scheduler implements the process-wide worker pool and task
// queue that execute per-partition query tasks and table-maintenance
// tasks, plus the memory-limit enforcer that evicts resident column
// storage under pressure. See Scheduler for the queue/condvar protocol.
package scheduler

import "sync/atomic"

// Task is one unit of schedulable work.
type Task interface {
	// Execute performs one unit of work. It must be idempotent if the
	// task may be re-scheduled onto multiple workers concurrently
	// (Multithreaded() == true).
	Execute()
	// Completed reports whether the task has finished all its work. It
	// is monotonic: once true, it never reverts to false.
	Completed() bool
	// Multithreaded reports whether this task may be picked up by more
	// than one worker concurrently (e.g. a partition-scan task that
	// internally partitions its own work further).
	Multithreaded() bool
}

// Func adapts a plain function into a single-shot, single-threaded
// Task, for simple fire-and-forget work (e.g. one partition's query).
type Func struct {
	fn        func()
	completed atomic.Bool
}

// NewFunc wraps fn as a Task.
func NewFunc(fn func()) *Func {
	return &Func{fn: fn}
}

func (f *Func) Execute() {
	f.fn()
	f.completed.Store(true)
}

func (f *Func) Completed() bool     { return f.completed.Load() }
func (f *Func) Multithreaded() bool { return false }
