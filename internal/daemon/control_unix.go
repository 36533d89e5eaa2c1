//go:build !windows

package daemon

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// Spawn starts the executable detached in its own session, running in dir
// with stdout and stderr appended to logFile, and returns the child PID.
func Spawn(executable string, args []string, dir, logFile string) (int, error) {
	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	proc, err := os.StartProcess(executable, append([]string{executable}, args...), &os.ProcAttr{
		Dir:   dir,
		Env:   os.Environ(),
		Files: []*os.File{nil, out, out},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return 0, err
	}

	pid := proc.Pid
	return pid, proc.Release()
}
