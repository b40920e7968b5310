// Package authrestart implements support for FileVault authorized restarts:
// restarts that hand a stored recovery credential to fdesetup so the
// encrypted boot volume unlocks without a user at the keyboard.
package authrestart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/groob/plist"
	"github.com/rs/zerolog"
)

const (
	fdesetupPath = "/usr/bin/fdesetup"
	shutdownPath = "/sbin/shutdown"
)

// minAuthRestartVersion is the oldest macOS release with fdesetup authrestart
// support.
var minAuthRestartVersion = semver.MustParse("10.8.0")

// Policy holds the managed preferences the restart flow consults.
type Policy struct {
	PerformAuthRestarts bool
	RecoveryKeyFile     string
}

// ProbeResult is the outcome of a single environment probe. Diagnostic
// carries the operator-facing explanation when the probe is not OK and there
// is something useful to report; a definite negative answer (for example
// FileVault cleanly reporting "false") leaves it empty.
type ProbeResult struct {
	OK         bool
	Diagnostic string
}

// KeyStatus distinguishes why a recovery key lookup came back without a
// secret. Callers gate on RecoveryKey.Present; the status exists so the two
// non-present cases keep separate diagnostics.
type KeyStatus int

const (
	KeyNotConfigured KeyStatus = iota
	KeyReadError
	KeyPresent
)

// RecoveryKey is the result of looking up the stored recovery credential.
// Secret is only set when Status is KeyPresent. It must never be logged.
type RecoveryKey struct {
	Status KeyStatus
	Secret string
}

// Present reports whether a usable secret was found.
func (k RecoveryKey) Present() bool {
	return k.Status == KeyPresent
}

// RestartOutcome reports which restart mechanism the decision flow ended up
// triggering.
type RestartOutcome int

const (
	// AuthorizedRestartTriggered means fdesetup authrestart accepted the
	// credential and is performing the restart itself.
	AuthorizedRestartTriggered RestartOutcome = iota
	// FellBackToNormalRestart means a plain shutdown -r was issued, either
	// because the machine was not eligible or because the authorized restart
	// attempt failed.
	FellBackToNormalRestart
)

func (o RestartOutcome) String() string {
	switch o {
	case AuthorizedRestartTriggered:
		return "authorized restart triggered"
	case FellBackToNormalRestart:
		return "fell back to normal restart"
	default:
		return "unknown"
	}
}

// successSignal marks helper stderr output that indicates success rather
// than failure on macOS versions at or past minVersion. fdesetup authrestart
// started writing an informational message to stderr in 10.12; entries are
// checked before the generic non-empty-stderr failure branch so the message
// is not misread as an error.
type successSignal struct {
	minVersion     *semver.Version
	stderrContains string
}

var restartSuccessSignals = []successSignal{
	{minVersion: semver.MustParse("10.12.0"), stderrContains: "System is being restarted"},
}

// Orchestrator runs the authorized-restart decision flow for a single
// invocation. Policy and OS version are fixed at construction; the
// subprocess functions default to the real fdesetup and shutdown commands
// and can be swapped in tests.
type Orchestrator struct {
	policy    Policy
	osVersion *semver.Version
	log       zerolog.Logger

	// can be set for tests to avoid spawning real processes.
	fdesetupIsActiveFn    func(ctx context.Context) ([]byte, error)
	fdesetupSupportsFn    func(ctx context.Context) ([]byte, error)
	fdesetupAuthRestartFn func(ctx context.Context, inputPlist []byte) (stderr []byte, err error)
	shutdownFn            func(ctx context.Context) error
	readFileFn            func(name string) ([]byte, error)
}

// New returns an Orchestrator bound to the given policy, host OS version and
// logger.
func New(policy Policy, osVersion *semver.Version, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		policy:                policy,
		osVersion:             osVersion,
		log:                   logger,
		fdesetupIsActiveFn:    fdesetupIsActive,
		fdesetupSupportsFn:    fdesetupSupportsAuthRestart,
		fdesetupAuthRestartFn: fdesetupAuthRestart,
		shutdownFn:            shutdownNow,
		readFileFn:            os.ReadFile,
	}
}

// FileVaultActive reports whether FileVault is enabled on the boot volume.
// Every failure mode degrades to a not-OK result with a logged diagnostic;
// it never returns an error.
func (o *Orchestrator) FileVaultActive(ctx context.Context) ProbeResult {
	o.log.Debug().Msg("checking if FileVault is enabled")
	out, err := o.fdesetupIsActiveFn(ctx)
	output := strings.TrimSpace(string(out))
	if err != nil {
		switch {
		case strings.Contains(output, "false"):
			// fdesetup isactive exits non-zero when FileVault is off, this
			// is the expected disabled signal.
			o.log.Warn().Msg("FileVault appears to be disabled")
			return ProbeResult{}
		case output == "":
			const diag = "encountered problem determining FileVault status"
			o.log.Warn().Msg(diag)
			return ProbeResult{Diagnostic: diag}
		default:
			o.log.Warn().Msg(output)
			return ProbeResult{Diagnostic: output}
		}
	}
	if strings.Contains(output, "true") {
		return ProbeResult{OK: true}
	}
	return ProbeResult{}
}

// SupportsAuthRestart reports whether the OS and firmware support fdesetup
// authrestart. Like FileVaultActive, it absorbs all failures.
func (o *Orchestrator) SupportsAuthRestart(ctx context.Context) ProbeResult {
	o.log.Debug().Msg("checking if FileVault can perform an authorized restart")
	out, err := o.fdesetupSupportsFn(ctx)
	output := strings.TrimSpace(string(out))
	if err != nil {
		diag := output
		if diag == "" {
			diag = "encountered problem determining AuthRestart status"
		}
		o.log.Warn().Msg(diag)
		return ProbeResult{Diagnostic: diag}
	}
	if strings.Contains(output, "true") {
		o.log.Debug().Msg("FileVault supports authorized restart")
		return ProbeResult{OK: true}
	}
	const diag = "FileVault AuthRestart is not supported"
	o.log.Warn().Msg(diag)
	return ProbeResult{Diagnostic: diag}
}

// RecoveryKey retrieves the recovery credential from the plist named by the
// RecoveryKeyFile preference. Both "not configured" and "lookup failed"
// gate identically downstream; the status only drives diagnostics.
func (o *Orchestrator) RecoveryKey() RecoveryKey {
	path := o.policy.RecoveryKeyFile
	if path == "" {
		o.log.Warn().Msg("RecoveryKeyFile preference is not set")
		return RecoveryKey{Status: KeyNotConfigured}
	}
	o.log.Debug().Msgf("RecoveryKeyFile preference is set to %s", path)

	data, err := o.readFileFn(path)
	if err != nil {
		o.log.Error().Err(err).Msgf("trouble getting info from %s", path)
		return RecoveryKey{Status: KeyReadError}
	}
	var doc struct {
		RecoveryKey *string `plist:"RecoveryKey"`
	}
	if err := plist.Unmarshal(data, &doc); err != nil {
		o.log.Error().Err(err).Msgf("trouble getting info from %s", path)
		return RecoveryKey{Status: KeyReadError}
	}
	if doc.RecoveryKey == nil {
		o.log.Error().Msgf("problem with key RecoveryKey in %s", path)
		return RecoveryKey{Status: KeyReadError}
	}
	secret := strings.TrimSpace(*doc.RecoveryKey)
	if secret == "" {
		o.log.Error().Msgf("problem with key RecoveryKey in %s", path)
		return RecoveryKey{Status: KeyReadError}
	}
	return RecoveryKey{Status: KeyPresent, Secret: secret}
}

// CanAttemptAuthRestart reports whether every precondition for an authorized
// restart holds. Conditions are evaluated cheapest first and short-circuit:
// once one fails, the remaining process-spawning probes are skipped, so the
// diagnostics emitted for a given failure depend on this order.
func (o *Orchestrator) CanAttemptAuthRestart(ctx context.Context) bool {
	return !o.osVersion.LessThan(minAuthRestartVersion) &&
		o.policy.PerformAuthRestarts &&
		o.FileVaultActive(ctx).OK &&
		o.SupportsAuthRestart(ctx).OK &&
		o.RecoveryKey().Present()
}

// PerformAuthRestart attempts an authorized restart. It re-checks capability
// rather than trusting an earlier gate evaluation, looks up the credential,
// and hands it to fdesetup authrestart on stdin as a plist. On success
// fdesetup performs the restart itself and this process is living on
// borrowed time. The credential is never logged and not retained after
// return.
func (o *Orchestrator) PerformAuthRestart(ctx context.Context) error {
	o.log.Debug().Msg("checking if performing an authorized restart is fully supported")
	if !o.SupportsAuthRestart(ctx).OK {
		o.log.Warn().Msg("machine doesn't support authorized restarts")
		return errors.New("authorized restart not supported")
	}
	o.log.Debug().Msg("machine supports authorized restarts")

	key := o.RecoveryKey()
	if !key.Present() {
		return errors.New("recovery key not available")
	}

	input, err := plist.Marshal(struct {
		Password string `plist:"Password"`
	}{Password: key.Secret})
	if err != nil {
		return fmt.Errorf("marshal authrestart input: %w", err)
	}

	o.log.Info().Msg("attempting an authorized restart now")
	stderr, err := o.fdesetupAuthRestartFn(ctx, input)
	if err != nil {
		return fmt.Errorf("run fdesetup authrestart: %w", err)
	}
	return o.classifyAuthRestart(stderr)
}

// classifyAuthRestart decides whether the helper's stderr indicates success.
// Success signals are checked before the generic non-empty-stderr failure
// branch: on 10.12 and later fdesetup reports the restart on stderr even
// when it worked.
func (o *Orchestrator) classifyAuthRestart(stderr []byte) error {
	errOutput := string(stderr)
	for _, sig := range restartSuccessSignals {
		if !o.osVersion.LessThan(sig.minVersion) && strings.Contains(errOutput, sig.stderrContains) {
			return nil
		}
	}
	// Any stderr bytes at all count as failure here, even bare whitespace:
	// reporting success without fdesetup actually restarting would leave
	// the machine un-restarted.
	if len(errOutput) > 0 {
		msg := strings.TrimSpace(errOutput)
		if msg == "" {
			msg = "unexpected stderr output"
		}
		o.log.Error().Msg(msg)
		return fmt.Errorf("fdesetup authrestart: %s", msg)
	}
	return nil
}

// Restart performs an authorized restart when allowed and possible, and a
// normal restart otherwise. Exactly one restart mechanism is invoked per
// call. The eligibility check here deliberately leaves the capability probe
// to PerformAuthRestart's own re-check.
func (o *Orchestrator) Restart(ctx context.Context) RestartOutcome {
	o.log.Info().Msg("restarting now")
	if o.policy.PerformAuthRestarts &&
		o.policy.RecoveryKeyFile != "" &&
		!o.osVersion.LessThan(minAuthRestartVersion) &&
		o.FileVaultActive(ctx).OK {
		o.log.Debug().Msg("configured to perform authorized restarts")
		if err := o.PerformAuthRestart(ctx); err != nil {
			o.log.Warn().Err(err).Msg("authorized restart failed, performing normal restart")
		} else {
			// fdesetup is restarting the machine.
			return AuthorizedRestartTriggered
		}
	}
	o.log.Debug().Msg("performing a regular restart")
	if err := o.shutdownFn(ctx); err != nil {
		// Match the original behavior of ignoring the shutdown exit status,
		// but leave a trace.
		o.log.Error().Err(err).Msg("shutdown command failed")
	}
	return FellBackToNormalRestart
}
