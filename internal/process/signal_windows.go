//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const processTerminate = 0x0001

// alive checks for an addressable process handle.
func alive(pid int) bool {
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(h)
	return true
}

// Windows has no graceful signal for arbitrary processes; both paths
// terminate. Grace-period semantics degrade to an immediate kill.
func signalTerm(pid int) { terminate(pid) }
func signalKill(pid int) { terminate(pid) }

func terminate(pid int) {
	if pid < 0 {
		pid = -pid
	}
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		return
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	_ = syscall.TerminateProcess(h, 1)
}

func exitStatusCode(cmd *exec.Cmd, err error) int {
	st := cmd.ProcessState
	if st == nil {
		return -1
	}
	return st.ExitCode()
}
