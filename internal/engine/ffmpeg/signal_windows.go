//go:build windows

package ffmpeg

import (
	"errors"
	"os/exec"
)

// ErrPauseNotSupported is returned on Windows, where a process cannot be
// suspended with a signal.
var ErrPauseNotSupported = errors.New("pause not supported on Windows")

func setProcessGroup(*exec.Cmd) {}

func suspend(*exec.Cmd) error {
	return ErrPauseNotSupported
}

func resume(*exec.Cmd) error {
	return ErrPauseNotSupported
}

func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
