package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/macadmins/authrestart/pkg/authrestart"
	"github.com/macadmins/authrestart/pkg/constant"
	"github.com/macadmins/authrestart/pkg/osversion"
	"github.com/macadmins/authrestart/pkg/preferences"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	// Flags set by goreleaser during build
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "authrestart"
	app.Usage = "Restart managed Macs through FileVault authorized restarts when possible"
	app.Commands = []*cli.Command{
		restartCommand,
		checkCommand,
		versionCommand,
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "prefs-path",
			Usage:   "Path to the managed preferences plist",
			Value:   constant.DefaultPreferencesPath,
			EnvVars: []string{"AUTHRESTART_PREFS_PATH"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: []string{"AUTHRESTART_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "Log to this file path in addition to stderr",
			EnvVars: []string{"AUTHRESTART_LOG_FILE"},
		},
	}
	app.Before = func(c *cli.Context) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano, NoColor: true})
		if logfile := c.String("log-file"); logfile != "" {
			f, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constant.DefaultFileMode)
			if err != nil {
				return errors.Wrap(err, "open logfile")
			}
			log.Logger = log.Output(zerolog.MultiLevelWriter(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano, NoColor: true},
				zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339Nano, NoColor: true},
			))
		}
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if c.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("authrestart failed")
	}
}

// newOrchestrator builds the orchestrator from preferences and the host OS
// version.
func newOrchestrator(c *cli.Context) (*authrestart.Orchestrator, error) {
	prefs, err := preferences.Load(c.String("prefs-path"))
	if err != nil {
		return nil, errors.Wrap(err, "load preferences")
	}
	osVersion, err := osversion.Version()
	if err != nil {
		return nil, errors.Wrap(err, "get OS version")
	}
	policy := authrestart.Policy{
		PerformAuthRestarts: prefs.PerformAuthRestarts,
		RecoveryKeyFile:     prefs.RecoveryKeyFile,
	}
	return authrestart.New(policy, osVersion, log.Logger), nil
}

var restartCommand = &cli.Command{
	Name:  "restart",
	Usage: "Restart the machine, using an authorized restart when eligible",
	Action: func(c *cli.Context) error {
		orch, err := newOrchestrator(c)
		if err != nil {
			return err
		}
		outcome := orch.Restart(context.Background())
		log.Info().Msg(outcome.String())
		return nil
	},
}

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Report authorized-restart eligibility without restarting",
	Action: func(c *cli.Context) error {
		orch, err := newOrchestrator(c)
		if err != nil {
			return err
		}
		ctx := context.Background()

		fileVault := orch.FileVaultActive(ctx)
		printProbe("FileVault active", fileVault)
		supported := orch.SupportsAuthRestart(ctx)
		printProbe("AuthRestart supported", supported)

		key := orch.RecoveryKey()
		switch key.Status {
		case authrestart.KeyPresent:
			fmt.Println("recovery key:          present")
		case authrestart.KeyNotConfigured:
			fmt.Println("recovery key:          not configured")
		case authrestart.KeyReadError:
			fmt.Println("recovery key:          lookup failed")
		}

		// The gate re-runs the probes to honor its short-circuit order;
		// they are read-only queries so the extra spawns are harmless.
		if orch.CanAttemptAuthRestart(ctx) {
			fmt.Println("authorized restart:    eligible")
		} else {
			fmt.Println("authorized restart:    not eligible, a plain restart would be used")
		}
		return nil
	},
}

func printProbe(name string, r authrestart.ProbeResult) {
	verdict := "no"
	if r.OK {
		verdict = "yes"
	}
	if r.Diagnostic != "" {
		verdict += " (" + r.Diagnostic + ")"
	}
	fmt.Printf("%-22s %s\n", name+":", verdict)
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Get the authrestart version",
	Action: func(c *cli.Context) error {
		fmt.Println("authrestart " + version)
		fmt.Println("commit - " + commit)
		fmt.Println("date - " + date)
		return nil
	},
}
