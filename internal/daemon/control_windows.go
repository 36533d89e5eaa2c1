//go:build windows

package daemon

import (
	"os"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a live process.
const stillActive = 259

func processAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

func terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// Spawn starts the executable in the background, running in dir with
// stdout and stderr appended to logFile, and returns the child PID.
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
	})
	if err != nil {
		return 0, err
	}

	pid := proc.Pid
	return pid, proc.Release()
}
