//go:build windows

package scheduler

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// processRSS reports the current process's working set size in bytes via
// GetProcessMemoryInfo.
func processRSS() (int64, bool) {
	h := windows.CurrentProcess()
	var info windows.PROCESS_MEMORY_COUNTERS
	if err := windows.GetProcessMemoryInfo(h, &info, uint32(unsafe.Sizeof(info))); err != nil {
		return 0, false
	}
	return int64(info.WorkingSetSize), true
}
