package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/memoio/go-mefs-pre/app/cmd"
	"github.com/memoio/go-mefs-pre/build"
)

func main() {
	app := &cli.App{
		Name:                 "pre",
		Usage:                "Threshold proxy re-encryption node",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    cmd.FlagNodeRepo,
				EnvVars: []string{"PRE_PATH"},
				Value:   "~/.pre",
				Usage:   "Specify pre repo path.",
			},
			&cli.StringFlag{
				Name:    cmd.FlagPassword,
				EnvVars: []string{"PRE_PASSWORD"},
				Value:   "memoriae",
				Usage:   "password for the keystore",
			},
		},

		Commands: cmd.CommonCmd,
	}

	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err) // nolint:errcheck
		os.Exit(1)
	}
}
