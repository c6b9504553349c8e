//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// detach starts the command in a new session so the miner is not tied to the
// watchdog's terminal and survives the watchdog exiting.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
