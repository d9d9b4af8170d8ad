//go:build windows

package render

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// killProcessGroup kills p and its children using taskkill.
// /F = force kill, /T = terminate child processes (tree kill).
func killProcessGroup(p *os.Process) {
	if p == nil {
		return
	}
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(p.Pid)).Run()
	_ = p.Kill()
}
