//go:build darwin

package authrestart

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// probeTimeout bounds the fdesetup status probes. fdesetup answers these in
// well under a second; a hung probe would otherwise hang the whole flow.
const probeTimeout = 1 * time.Minute

func fdesetupIsActive(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, fdesetupPath, "isactive").CombinedOutput()
}

func fdesetupSupportsAuthRestart(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, fdesetupPath, "supportsauthrestart").CombinedOutput()
}

// fdesetupAuthRestart feeds the Password plist to fdesetup authrestart on
// stdin and returns whatever it wrote to stderr. No timeout: on success the
// command ends in a reboot.
func fdesetupAuthRestart(ctx context.Context, inputPlist []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, fdesetupPath, "authrestart", "-inputplist")
	cmd.Stdin = bytes.NewReader(inputPlist)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// fdesetup can exit non-zero while still having written a
		// classifiable message to stderr; let the caller interpret it.
		if _, ok := err.(*exec.ExitError); !ok {
			return stderr.Bytes(), err
		}
	}
	return stderr.Bytes(), nil
}

func shutdownNow(ctx context.Context) error {
	return exec.CommandContext(ctx, shutdownPath, "-r", "now").Run()
}
