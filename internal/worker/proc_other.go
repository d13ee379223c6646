//go:build !unix

package worker

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// terminate has no graceful variant here; the process is killed outright.
func terminate(p *os.Process) error {
	return p.Kill()
}

func forceKill(p *os.Process) error {
	return p.Kill()
}

func processGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

func exitSignal(*os.ProcessState) string {
	return ""
}
