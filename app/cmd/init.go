package cmd

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/app/minit"
	"github.com/memoio/go-mefs-pre/config"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/repo"
)

var logger = logging.Logger("main")

const (
	FlagNodeRepo = "repo"
	FlagPassword = "password"
)

var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Initialize a pre repo",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "name of this node",
			Value: "ursula",
		},
	},
	Action: func(cctx *cli.Context) error {
		logger.Info("Initializing pre node")

		logger.Info("Checking if repo exists")

		repoDir := cctx.String(FlagNodeRepo)

		exist, err := repo.Exists(repoDir)
		if err != nil {
			return err
		}
		if exist {
			return xerrors.Errorf("repo at '%s' is already initialized", repoDir)
		}

		logger.Infof("Initializing repo at '%s'", repoDir)

		cfg := config.NewDefaultConfig()
		cfg.Identity.Name = cctx.String("name")
		if err := cfg.Validate(); err != nil {
			return err
		}

		rep, err := repo.NewFSRepo(repoDir, cfg, cctx.String(FlagPassword))
		if err != nil {
			return err
		}

		defer func() {
			_ = rep.Close()
		}()

		if err := minit.Create(cctx.Context, rep); err != nil {
			logger.Errorf("Error initializing node %s", err)
			return err
		}

		return nil
	},
}
