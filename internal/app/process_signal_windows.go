//go:build windows

package app

import "golang.org/x/sys/windows"

// STILL_ACTIVE: any other exit code means the process has terminated and the
// pid file it left behind is stale.
const windowsStillActiveExitCode = 259

// processExists reports whether pid names a live process by querying its exit
// code through a limited-information handle.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == windowsStillActiveExitCode
}
