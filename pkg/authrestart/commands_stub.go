//go:build !darwin

package authrestart

import (
	"context"
	"errors"
)

var errUnsupportedPlatform = errors.New("fdesetup is only available on macOS")

func fdesetupIsActive(ctx context.Context) ([]byte, error) {
	return nil, errUnsupportedPlatform
}

func fdesetupSupportsAuthRestart(ctx context.Context) ([]byte, error) {
	return nil, errUnsupportedPlatform
}

func fdesetupAuthRestart(ctx context.Context, inputPlist []byte) ([]byte, error) {
	return nil, errUnsupportedPlatform
}

func shutdownNow(ctx context.Context) error {
	return errUnsupportedPlatform
}
