package cmd

import (
	"math/big"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/build"
	"github.com/memoio/go-mefs-pre/lib/repo"
	basenode "github.com/memoio/go-mefs-pre/submodule/node"
)

var CommonCmd []*cli.Command

func init() {
	CommonCmd = []*cli.Command{
		InitCmd,
		DaemonCmd,
		KeyCmd,
		ConfigCmd,
		LedgerCmd,
		PreCmd,
	}
}

func openRepo(cctx *cli.Context) (*repo.FSRepo, error) {
	return repo.NewFSRepo(cctx.String(FlagNodeRepo), nil, cctx.String(FlagPassword))
}

// openNode opens the repo and the node on top of it; closing the node
// closes the repo.
func openNode(cctx *cli.Context, opts ...basenode.BuilderOpt) (*basenode.Node, error) {
	rep, err := openRepo(cctx)
	if err != nil {
		return nil, err
	}
	n, err := basenode.New(cctx.Context, rep, opts...)
	if err != nil {
		_ = rep.Close()
		return nil, err
	}
	return n, nil
}

var decimals = len(build.Decimals.String()) - 1

// formatToken prints v in whole tokens.
func formatToken(v *big.Int) string {
	if v == nil {
		return "0 PRE"
	}
	q, r := new(big.Int).QuoRem(v, build.Decimals, new(big.Int))
	if r.Sign() == 0 {
		return q.String() + " PRE"
	}
	frac := strings.TrimRight(leftPad(r.String(), decimals), "0")
	return q.String() + "." + frac + " PRE"
}

// parseToken reads a decimal token amount such as "15000" or "0.5".
func parseToken(s string) (*big.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	if len(frac) > decimals {
		return nil, xerrors.Errorf("%s: more than %d decimals", s, decimals)
	}
	v, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", decimals-len(frac)), 10)
	if !ok || v.Sign() < 0 {
		return nil, xerrors.Errorf("%s is not a token amount", s)
	}
	return v, nil
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
