//go:build !windows

package ffmpeg

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts FFmpeg in its own process group so signals reach
// any children it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return cmd.Process.Signal(sig)
}

// suspend freezes FFmpeg; reads stop and the position holds.
func suspend(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGSTOP)
}

func resume(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGCONT)
}

// terminate asks FFmpeg to exit. A suspended process is continued first
// so it can handle SIGTERM.
func terminate(cmd *exec.Cmd) error {
	_ = resume(cmd)
	return signalGroup(cmd, syscall.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}
