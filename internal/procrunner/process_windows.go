//go:build windows

package procrunner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the child in its own process group. Windows
// has no setpgid; CREATE_NEW_PROCESS_GROUP is the closest primitive and is
// enough to target the child (but not arbitrary grandchildren it spawns
// without opting in) for termination. A full job-object implementation
// would be required to match the POSIX guarantee exactly.
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessGroup terminates the process by pid. This is best-effort: it
// does not reach descendants the way POSIX killpg(-pid) does.
func killProcessGroup(pid int) error {
	const processTerminate = 0x0001
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		return err
	}
	defer syscall.CloseHandle(h)
	return syscall.TerminateProcess(h, 1)
}

func isNoSuchProcess(err error) bool {
	if err == nil {
		return false
	}
	const errorInvalidParameter syscall.Errno = 87
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, syscall.ERROR_NOT_FOUND) ||
		errors.Is(err, errorInvalidParameter)
}
