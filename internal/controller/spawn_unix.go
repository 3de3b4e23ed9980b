//go:build !windows

package controller

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child into its own session so it
// survives controller exit and never shares the controlling terminal.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
