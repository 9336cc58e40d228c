package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const lsofTimeout = 2 * time.Second

// FindPIDByPort returns the PID of the process listening on the TCP port, or
// false when nothing is bound. lsof is preferred; on Linux a /proc walk
// covers hosts without it.
func (m *Manager) FindPIDByPort(port uint16) (int, bool) {
	pid, ok, err := pidByPortLsof(port)
	if err == nil {
		return pid, ok
	}
	if runtime.GOOS == "linux" {
		return pidByPortProc(port)
	}
	return 0, false
}

// pidByPortLsof shells out to lsof. The error return means lsof itself was
// unusable (missing binary, timeout), not that the port is free.
func pidByPortLsof(port uint16) (int, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lsofTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "lsof", "-nP", "-t", fmt.Sprintf("-i:%d", port), "-sTCP:LISTEN").Output()
	if ctx.Err() != nil {
		return 0, false, ctx.Err()
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			// lsof exits 1 when nothing matches
			return 0, false, nil
		}
		return 0, false, err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if pid, perr := strconv.Atoi(strings.TrimSpace(line)); perr == nil && pid > 0 {
			return pid, true, nil
		}
	}
	return 0, false, nil
}

// pidByPortProc resolves a listening port to a PID the long way: find the
// socket inode in /proc/net/tcp{,6}, then walk /proc/*/fd for the process
// holding it.
func pidByPortProc(port uint16) (int, bool) {
	inode := ""
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if ino, ok := listenInode(table, port); ok {
			inode = ino
			break
		}
	}
	if inode == "" {
		return 0, false
	}
	return pidHoldingSocket(inode)
}

// listenInode scans one /proc/net table for a LISTEN row on the port and
// returns its socket inode.
func listenInode(table string, port uint16) (string, bool) {
	b, err := os.ReadFile(table)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(b), "\n")
	for _, line := range lines[1:] {
		f := strings.Fields(line)
		// sl local rem st queues tr retrnsmt uid timeout inode ...
		if len(f) < 10 || f[3] != "0A" {
			continue
		}
		i := strings.LastIndexByte(f[1], ':')
		if i < 0 {
			continue
		}
		p, err := strconv.ParseUint(f[1][i+1:], 16, 16)
		if err != nil || uint16(p) != port {
			continue
		}
		return f[9], true
	}
	return "", false
}

func pidHoldingSocket(inode string) (int, bool) {
	target := "socket:[" + inode + "]"
	procs, err := os.ReadDir("/proc")
	if err != nil {
		return 0, false
	}
	for _, pe := range procs {
		pid, err := strconv.Atoi(pe.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", pe.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // permission denied or raced with exit
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err == nil && link == target {
				return pid, true
			}
		}
	}
	return 0, false
}
