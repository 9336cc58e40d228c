//go:build !windows

package process

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
)

// alive is a signal-0 probe. EPERM means the PID exists but belongs to
// another user, which still counts as alive. Linux zombies are dead for our
// purposes: they hold no port and cannot serve.
func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		if runtime.GOOS == "linux" && isZombie(pid) {
			return false
		}
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// isZombie reads /proc/<pid>/status and checks for state Z.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// signalTerm asks the whole process group to shut down. Adopted processes
// may not lead a group we can address, so fall back to the PID itself.
func signalTerm(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
}

func signalKill(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// exitStatusCode recovers the numeric exit code after cmd.Wait returned err.
// Signal deaths map to the conventional 128+signal.
func exitStatusCode(cmd *exec.Cmd, err error) int {
	st := cmd.ProcessState
	if st == nil {
		return -1
	}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if err != nil && st.ExitCode() < 0 {
		return -1
	}
	return st.ExitCode()
}
