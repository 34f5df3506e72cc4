//go:build windows

package flock

import (
	"os"
)

// Windows has no flock(2); rely on the PID recorded in the lock file for
// mutual exclusion. Best effort only: two racing processes on Windows can
// both pass, which matches the single-operator installations this tool
// targets there.
func lockFile(_ *os.File) error {
	return nil
}

func unlockFile(_ *os.File) error {
	return nil
}

// processAlive probes a PID via FindProcess.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
