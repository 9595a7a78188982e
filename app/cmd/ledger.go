package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mgutz/ansi"
	"github.com/modood/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/build"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
	basenode "github.com/memoio/go-mefs-pre/submodule/node"
)

var LedgerCmd = &cli.Command{
	Name:  "ledger",
	Usage: "Interact with the staking and policy ledger",
	Subcommands: []*cli.Command{
		ledgerStatusCmd,
		ledgerStakerCmd,
		ledgerTransferCmd,
		ledgerDepositCmd,
		ledgerLockCmd,
		ledgerProlongCmd,
		ledgerWithdrawCmd,
		ledgerWorkerCmd,
		ledgerCommitCmd,
		ledgerMintCmd,
		ledgerPolicyCmd,
		ledgerWithdrawFeeCmd,
		ledgerMsgCmd,
	},
}

var addrFlag = &cli.StringFlag{
	Name:  "addr",
	Usage: "hex account or stamp key; defaults to this node",
}

func accountOf(cctx *cli.Context, n *basenode.Node) (common.Address, error) {
	if s := cctx.String("addr"); s != "" {
		return basenode.ParseAccount(s)
	}
	return n.Account()
}

// pushAction builds an action that signs one message from the node's stamp.
func pushAction(method tx.MsgType, params func(cctx *cli.Context) (interface{}, error)) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		var p interface{}
		if params != nil {
			var err error
			p, err = params(cctx)
			if err != nil {
				return err
			}
		}

		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		rc, err := n.PushMessage(cctx.Context, method, p)
		if err != nil {
			return err
		}
		printReceipt(rc)
		return nil
	}
}

func printReceipt(rc *tx.Receipt) {
	fmt.Printf("%s %s at height %d\n", ansi.Color("applied", "green"), rc.MsgID, rc.Height)
	for _, er := range rc.Events {
		ev, err := er.Event()
		if err != nil {
			fmt.Println("  ", ansi.Color(err.Error(), "red"))
			continue
		}
		fmt.Printf("  %T %+v\n", ev, ev)
	}
}

var ledgerStatusCmd = &cli.Command{
	Name:  "status",
	Usage: "print the ledger state",
	Action: func(cctx *cli.Context) error {
		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		l := n.Ledger
		params := l.Params()
		now := n.Clock().Now()

		fmt.Println(ansi.Color("----------- Ledger -----------", "green"))
		fmt.Println("Height: ", l.GetHeight())
		cur := params.Period(now)
		start := build.PeriodStart(cur, params.PeriodDuration)
		fmt.Printf("Period: %d (applied), %d (now, started %s)\n", l.GetPeriod(), cur, time.Unix(start, 0).Format(time.RFC3339))
		fmt.Println("Supply: ", formatToken(l.GetSupply()))
		fmt.Println("Fee pool: ", formatToken(l.GetFeePool()))

		locked, err := l.GetAllLockedTokens(l.GetPeriod())
		if err != nil {
			return err
		}
		fmt.Println("Locked: ", formatToken(locked))
		fmt.Println("Store size: ", n.Repo().MetaStore().Size())

		fmt.Println(ansi.Color("----------- Stakers -----------", "green"))
		type stakerRow struct {
			Address   string
			Value     string
			Locked    string
			Committed uint64
			Worker    string
		}
		var rows []stakerRow
		for _, addr := range l.GetStakers() {
			st, err := l.GetStakerInfo(addr)
			if err != nil {
				return err
			}
			row := stakerRow{
				Address:   addr.Hex(),
				Value:     formatToken(st.Value),
				Locked:    formatToken(st.LockedAt(l.GetPeriod() + 1)),
				Committed: st.LastCommittedPeriod,
			}
			if st.Worker != (common.Address{}) {
				row.Worker = st.Worker.Hex()
			}
			rows = append(rows, row)
		}
		table.Output(rows)
		return nil
	},
}

var ledgerStakerCmd = &cli.Command{
	Name:  "staker",
	Usage: "print balance, escrow and sub-stakes of an account",
	Flags: []cli.Flag{addrFlag},
	Action: func(cctx *cli.Context) error {
		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		addr, err := accountOf(cctx, n)
		if err != nil {
			return err
		}

		bal, err := n.Ledger.GetBalance(addr)
		if err != nil {
			return err
		}
		fmt.Println("Account: ", addr.Hex())
		fmt.Println("Balance: ", formatToken(bal))

		st, err := n.Ledger.GetStakerInfo(addr)
		if errors.Is(err, ledger.ErrUnknownStaker) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Escrow: ", formatToken(st.Value))
		fmt.Println("Last committed: ", st.LastCommittedPeriod)
		fmt.Printf("Wind down: %t, Re-stake: %t, Penalties: %d\n", st.WindDown, st.ReStake, st.PenaltyHistory)
		for _, d := range st.Downtime {
			fmt.Printf("Downtime: %d-%d\n", d.Start, d.End)
		}

		type subRow struct {
			Index   int
			First   uint64
			Last    uint64
			Periods uint64
			Value   string
		}
		rows := make([]subRow, 0, len(st.SubStakes))
		for i, sub := range st.SubStakes {
			rows = append(rows, subRow{
				Index:   i,
				First:   sub.FirstPeriod,
				Last:    sub.LastPeriodOf(st.LastCommittedPeriod),
				Periods: sub.Periods,
				Value:   formatToken(sub.Value),
			})
		}
		table.Output(rows)

		if nf, err := n.Ledger.GetNodeFee(addr); err == nil {
			fmt.Println("Fee: ", formatToken(nf.Fee))
		}
		return nil
	},
}

var valueFlag = &cli.StringFlag{
	Name:     "value",
	Usage:    "amount in tokens, e.g. 15000 or 0.5",
	Required: true,
}

var periodsFlag = &cli.Uint64Flag{
	Name:     "periods",
	Usage:    "number of periods",
	Required: true,
}

var ledgerTransferCmd = &cli.Command{
	Name:  "transfer",
	Usage: "transfer tokens",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "to", Usage: "receiver account", Required: true},
		valueFlag,
	},
	Action: pushAction(tx.Transfer, func(cctx *cli.Context) (interface{}, error) {
		to, err := basenode.ParseAccount(cctx.String("to"))
		if err != nil {
			return nil, err
		}
		v, err := parseToken(cctx.String("value"))
		if err != nil {
			return nil, err
		}
		return &tx.TransferParams{To: to, Value: v}, nil
	}),
}

func depositParams(cctx *cli.Context) (interface{}, error) {
	v, err := parseToken(cctx.String("value"))
	if err != nil {
		return nil, err
	}
	return &tx.DepositParams{Value: v, Periods: cctx.Uint64("periods")}, nil
}

var ledgerDepositCmd = &cli.Command{
	Name:   "deposit",
	Usage:  "move balance into escrow as a new sub-stake",
	Flags:  []cli.Flag{valueFlag, periodsFlag},
	Action: pushAction(tx.Deposit, depositParams),
}

var ledgerLockCmd = &cli.Command{
	Name:   "lock",
	Usage:  "lock unlocked escrow as a new sub-stake",
	Flags:  []cli.Flag{valueFlag, periodsFlag},
	Action: pushAction(tx.Lock, depositParams),
}

var ledgerProlongCmd = &cli.Command{
	Name:  "prolong",
	Usage: "extend a sub-stake",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "index", Usage: "sub-stake index"},
		periodsFlag,
	},
	Action: pushAction(tx.ProlongStake, func(cctx *cli.Context) (interface{}, error) {
		return &tx.ProlongParams{Index: uint32(cctx.Uint("index")), Periods: cctx.Uint64("periods")}, nil
	}),
}

var ledgerWithdrawCmd = &cli.Command{
	Name:  "withdraw",
	Usage: "withdraw unlocked escrow",
	Flags: []cli.Flag{valueFlag},
	Action: pushAction(tx.Withdraw, func(cctx *cli.Context) (interface{}, error) {
		v, err := parseToken(cctx.String("value"))
		if err != nil {
			return nil, err
		}
		return &tx.WithdrawParams{Value: v}, nil
	}),
}

var ledgerWorkerCmd = &cli.Command{
	Name:  "worker",
	Usage: "bind a worker account that commits for this staker",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "worker", Usage: "worker account", Required: true},
	},
	Action: pushAction(tx.SetWorker, func(cctx *cli.Context) (interface{}, error) {
		w, err := basenode.ParseAccount(cctx.String("worker"))
		if err != nil {
			return nil, err
		}
		return &tx.WorkerParams{Worker: w}, nil
	}),
}

var ledgerCommitCmd = &cli.Command{
	Name:  "commit",
	Usage: "commit to the next period now",
	Action: func(cctx *cli.Context) error {
		n, err := openNode(cctx, basenode.Proxy(true))
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		if n.Ursula == nil {
			return basenode.ErrNoStamp
		}
		if err := n.Ursula.CommitNext(cctx.Context); err != nil {
			return err
		}

		acc := n.Ursula.Account()
		if st, ok, err := n.Ledger.GetWorkerStaker(acc); err == nil && ok {
			acc = st
		}
		last, err := n.Ledger.GetLastCommittedPeriod(acc)
		if err != nil {
			return err
		}
		fmt.Println("committed to period", last)
		return nil
	},
}

var ledgerMintCmd = &cli.Command{
	Name:   "mint",
	Usage:  "mint rewards for committed periods",
	Action: pushAction(tx.Mint, nil),
}

var ledgerWithdrawFeeCmd = &cli.Command{
	Name:   "withdraw-fee",
	Usage:  "withdraw accrued policy fees",
	Action: pushAction(tx.WithdrawFee, nil),
}

var ledgerPolicyCmd = &cli.Command{
	Name:  "policy",
	Usage: "manage policies",
	Subcommands: []*cli.Command{
		policyCreateCmd,
		policyShowCmd,
		policyRevokeCmd,
		policyRefundCmd,
	},
}

var policyIDFlag = &cli.StringFlag{
	Name:     "id",
	Usage:    "policy id",
	Required: true,
}

func policyRef(cctx *cli.Context) (interface{}, error) {
	id, err := types.ParsePolicyID(cctx.String("id"))
	if err != nil {
		return nil, err
	}
	return &tx.PolicyRefParams{ID: id}, nil
}

var policyCreateCmd = &cli.Command{
	Name:  "create",
	Usage: "pay nodes to serve a policy",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "policy id; random when empty"},
		&cli.StringFlag{Name: "nodes", Usage: "comma separated staker accounts", Required: true},
		periodsFlag,
		valueFlag,
	},
	Action: pushAction(tx.CreatePolicy, func(cctx *cli.Context) (interface{}, error) {
		id := types.NewPolicyID()
		if s := cctx.String("id"); s != "" {
			var err error
			id, err = types.ParsePolicyID(s)
			if err != nil {
				return nil, err
			}
		}

		var nodes []common.Address
		for _, s := range strings.Split(cctx.String("nodes"), ",") {
			addr, err := basenode.ParseAccount(strings.TrimSpace(s))
			if err != nil {
				return nil, xerrors.Errorf("node %q: %w", s, err)
			}
			nodes = append(nodes, addr)
		}

		v, err := parseToken(cctx.String("value"))
		if err != nil {
			return nil, err
		}

		fmt.Println("policy:", id)
		return &tx.PolicyParams{ID: id, Periods: cctx.Uint64("periods"), Nodes: nodes, Value: v}, nil
	}),
}

var policyShowCmd = &cli.Command{
	Name:  "show",
	Usage: "print a policy",
	Flags: []cli.Flag{policyIDFlag},
	Action: func(cctx *cli.Context) error {
		id, err := types.ParsePolicyID(cctx.String("id"))
		if err != nil {
			return err
		}

		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		p, err := n.Ledger.GetPolicy(id)
		if err != nil {
			return err
		}

		fmt.Println("Owner: ", p.Owner.Hex())
		fmt.Println("Sponsor: ", p.Sponsor.Hex())
		fmt.Println("Fee rate: ", formatToken(p.FeeRate))
		fmt.Printf("Periods: %d-%d, Disabled: %t\n", p.FirstPeriod, p.LastPeriod, p.Disabled)
		owed, err := n.Ledger.CalculateRefund(id, n.Clock().Now())
		if err != nil {
			return err
		}
		fmt.Println("Refundable: ", formatToken(owed))

		type arrRow struct {
			Node     string
			Active   bool
			Refunded uint64
		}
		rows := make([]arrRow, 0, len(p.Arrangements))
		for _, a := range p.Arrangements {
			rows = append(rows, arrRow{Node: a.Node.Hex(), Active: a.Active, Refunded: a.LastRefundedPeriod})
		}
		table.Output(rows)
		return nil
	},
}

var policyRevokeCmd = &cli.Command{
	Name:   "revoke",
	Usage:  "revoke a policy and return the unspent fee",
	Flags:  []cli.Flag{policyIDFlag},
	Action: pushAction(tx.RevokePolicy, policyRef),
}

var policyRefundCmd = &cli.Command{
	Name:   "refund",
	Usage:  "refund the fee of periods nodes were down",
	Flags:  []cli.Flag{policyIDFlag},
	Action: pushAction(tx.Refund, policyRef),
}

var ledgerMsgCmd = &cli.Command{
	Name:  "msg",
	Usage: "look up a message applied by this node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "message id", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		mid, err := types.FromString(cctx.String("id"))
		if err != nil {
			return err
		}

		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		sm, ms, err := n.Chain.GetReceipt(mid)
		if err != nil {
			return err
		}
		fmt.Println("From: ", sm.From.Hex())
		fmt.Println("Nonce: ", sm.Nonce)
		fmt.Println("Method: ", tx.MethodName(sm.Method))
		fmt.Printf("Block: %s at height %d\n", ms.BlockID, ms.Height)
		if ms.Status == tx.Ok {
			fmt.Println("Status: ", ansi.Color("ok", "green"))
		} else {
			fmt.Println("Status: ", ansi.Color("failed", "red"))
		}

		events, err := n.Ledger.GetEvents(ms.Height)
		if err != nil {
			return err
		}
		for _, er := range events {
			if ev, err := er.Event(); err == nil {
				fmt.Printf("  %T %+v\n", ev, ev)
			}
		}
		return nil
	},
}
