package cmd

import (
	"fmt"

	"github.com/modood/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/submodule/wallet"
)

var KeyCmd = &cli.Command{
	Name:  "keys",
	Usage: "Interact with the local keystore",
	Subcommands: []*cli.Command{
		keyNewCmd,
		keyListCmd,
	},
}

type keyRow struct {
	Address string
	Kind    string
	Account string
	Default string
}

var keyListCmd = &cli.Command{
	Name:  "list",
	Usage: "list all keys",
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		entries, err := rep.Wallet().List()
		if err != nil {
			return err
		}

		id := rep.Config().Identity
		rows := make([]keyRow, 0, len(entries))
		for _, e := range entries {
			row := keyRow{Address: e.Address.String(), Kind: e.Kind.String()}
			if acc, err := e.Address.Account(); err == nil {
				row.Account = acc.Hex()
			}
			if row.Address == id.Stamp || row.Address == id.Key {
				row.Default = "*"
			}
			rows = append(rows, row)
		}
		table.Output(rows)
		return nil
	},
}

var keyNewCmd = &cli.Command{
	Name:  "new",
	Usage: "create a new key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "kind",
			Usage: "stamp or pre",
			Value: "pre",
		},
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		var addr address.Address
		switch cctx.String("kind") {
		case wallet.KindStamp.String():
			addr, err = rep.Wallet().NewStamp()
		case wallet.KindPRE.String():
			addr, err = rep.Wallet().NewPRE()
		default:
			return xerrors.Errorf("unknown key kind %q", cctx.String("kind"))
		}
		if err != nil {
			return err
		}
		fmt.Println(addr)

		return nil
	},
}
