package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/memoio/go-mefs-pre/app/minit"
	"github.com/memoio/go-mefs-pre/config"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	basenode "github.com/memoio/go-mefs-pre/submodule/node"
)

const (
	metricsAddrKwd = "metrics"
)

var DaemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "Run a pre node.",

	Subcommands: []*cli.Command{
		daemonStartCmd,
	},
}

var daemonStartCmd = &cli.Command{
	Name:  "start",
	Usage: "Start a pre daemon that commits to periods and serves metrics",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  metricsAddrKwd,
			Usage: "serve metrics at this address",
		},
	},
	Action: func(cctx *cli.Context) error {
		return daemonStartFunc(cctx)
	},
}

// create a node with repo data and start it
func daemonStartFunc(cctx *cli.Context) (_err error) {
	logger.Info("Initializing daemon...")

	minit.PrintVersion()

	rep, err := openRepo(cctx)
	if err != nil {
		return err
	}

	repoDir, err := rep.Path()
	if err != nil {
		_ = rep.Close()
		return err
	}
	stopFunc, err := minit.ProfileIfEnabled(repoDir)
	if err != nil {
		_ = rep.Close()
		return err
	}
	defer stopFunc()

	// handle config
	cfg := rep.Config()
	if addr := cctx.String(metricsAddrKwd); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
		if err := cfg.Validate(); err != nil {
			_ = rep.Close()
			return err
		}
		if err := rep.ReplaceConfig(cfg); err != nil {
			_ = rep.Close()
			return err
		}
	}

	setupLog(cfg)

	node, err := basenode.New(cctx.Context, rep, basenode.Proxy(true))
	if err != nil {
		_ = rep.Close()
		return err
	}

	// Start the node
	if err := node.Start(); err != nil {
		return err
	}

	return node.RunDaemon(nil)
}

func setupLog(cfg *config.Config) {
	logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
}
