//go:build darwin

package scheduler

import "golang.org/x/sys/unix"

// processRSS reports the process's peak resident set size in bytes,
// read via getrusage(RUSAGE_SELF). ru_maxrss is already reported in
// bytes on Darwin, unlike Linux's KiB.
func processRSS() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return ru.Maxrss, true
}
