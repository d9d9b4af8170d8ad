//go:build !windows

package render

import (
	"os"
	"syscall"
)

// sysProcAttr puts the shell in its own process group so latex and
// dvisvgm, its children, can be signalled together.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group led by p.
// Best-effort; p.Kill covers the case where the group is already gone.
func killProcessGroup(p *os.Process) {
	if p == nil {
		return
	}
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
	_ = p.Kill()
}
