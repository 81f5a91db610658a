//go:build linux

package scheduler

import "golang.org/x/sys/unix"

// processRSS reports the process's peak resident set size in bytes,
// read via getrusage(RUSAGE_SELF), as an additional signal the
// MemoryEnforcer logs alongside its own tracked HeapSize estimate.
// ru_maxrss is reported in KiB on Linux.
func processRSS() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return ru.Maxrss * 1024, true
}
