//go:build !windows

package procrunner

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in a new process group whose id
// equals its own pid, so descendants can be signalled en masse.
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		return
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup sends SIGKILL to -pid (the whole process group).
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
