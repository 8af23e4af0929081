//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// ShutdownSignals are the signals a foreground server exits on.
var ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Detach starts cmd in its own session so it outlives the launching terminal.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// EPERM means the process exists under another user.
func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }

func kill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }
