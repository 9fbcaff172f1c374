//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// waitDelay bounds how long Wait keeps copying stdio after the process exits.
const waitDelay = 5 * time.Second

// Set places cmd in a new process group and makes context cancellation kill
// the whole group instead of only the direct child.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		return Kill(cmd)
	}
	cmd.WaitDelay = waitDelay
}

// Kill sends SIGKILL to the process group of cmd. A group that already exited
// is not an error.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// Fall back to the direct child when the group is gone or not ours.
	if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, syscall.ESRCH) {
		return err
	}
	return nil
}

// Alive reports whether a process with pid still exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
