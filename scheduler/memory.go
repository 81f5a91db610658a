package scheduler

import (
	"fmt"
	"log"
	"time"
)

// MemoryEnforcer runs a background loop that wakes once per tick,
// measures total resident memory via HeapSize, and while over Limit,
// repeatedly calls Evict to drop the least-recently-used column's
// resident storage. If Evict reports nothing left to evict while still
// over Limit, it logs a warning and waits for the next tick.
type MemoryEnforcer struct {
	// Limit is the soft memory ceiling in bytes; 0 means no limit is
	// configured and disables enforcement entirely.
	Limit int64
	// HeapSize reports current total resident bytes across all tables.
	HeapSize func() int64
	// Evict performs one eviction step (drop one column's resident
	// storage) and reports whether a victim was found.
	Evict func() bool
	// Tick is the enforcement interval; defaults to one second.
	Tick time.Duration
	// Logger receives warnings; defaults to the standard library
	// logger if nil.
	Logger *log.Logger

	stop chan struct{}
	done chan struct{}
}

// Start launches the enforcement loop in a background goroutine.
func (m *MemoryEnforcer) Start() {
	if m.Tick == 0 {
		m.Tick = time.Second
	}
	if m.Logger == nil {
		m.Logger = log.Default()
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run()
}

// Stop signals the enforcement loop to exit and waits for it to do so.
func (m *MemoryEnforcer) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

func (m *MemoryEnforcer) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.enforceOnce()
		}
	}
}

func (m *MemoryEnforcer) enforceOnce() {
	if m.Limit <= 0 {
		// A zero limit means no ceiling is configured.
		return
	}
	usage := m.HeapSize()
	if usage <= m.Limit {
		return
	}
	m.Logger.Printf("Evicting. mem_usage_bytes = %d%s", usage, rssSuffix())
	for usage > m.Limit {
		if !m.Evict() {
			m.Logger.Printf("Table memory usage is %d but failed to find column to evict!", usage)
			break
		}
		usage = m.HeapSize()
	}
	m.Logger.Printf("mem_usage_bytes = %d%s", usage, rssSuffix())
}

// rssSuffix renders the resident set size processRSS reports (the peak
// RSS on Linux and Darwin), where the platform supports reading it, as a
// cross-check against HeapSize's tracked estimate.
func rssSuffix() string {
	rss, ok := processRSS()
	if !ok {
		return ""
	}
	return fmt.Sprintf(" (rss_bytes = %d)", rss)
}
