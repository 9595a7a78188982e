package cmd

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/mgutz/ansi"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/lib/backend/kv"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/repo"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/service/retrieval"
	"github.com/memoio/go-mefs-pre/service/ursula"
	basenode "github.com/memoio/go-mefs-pre/submodule/node"
)

var PreCmd = &cli.Command{
	Name:  "pre",
	Usage: "Encrypt, delegate and re-encrypt data",
	Subcommands: []*cli.Command{
		preEncryptCmd,
		preDecryptCmd,
		preKFragsCmd,
		preGrantCmd,
		preRevokeCmd,
		preRetrieveCmd,
	},
}

// sealed is a ciphertext with the capsule that opens it.
type sealed struct {
	Capsule    []byte
	Ciphertext []byte
}

// kfragSet is the output of a delegation: the kfrags for n proxies and the
// keys needed to check them.
type kfragSet struct {
	Threshold  int
	Delegating []byte
	Receiving  []byte
	Verifying  []byte
	KFrags     [][]byte
}

func (ks *kfragSet) keys() (verifying, delegating, receiving *pre.PublicKey, err error) {
	if verifying, err = pre.PublicKeyFromBytes(ks.Verifying); err != nil {
		return
	}
	if delegating, err = pre.PublicKeyFromBytes(ks.Delegating); err != nil {
		return
	}
	receiving, err = pre.PublicKeyFromBytes(ks.Receiving)
	return
}

func readFile(p string, v interface{}) error {
	b, err := ioutil.ReadFile(p)
	if err != nil {
		return err
	}
	if err := types.Decode(b, v); err != nil {
		return xerrors.Errorf("decode %s: %w", p, err)
	}
	return nil
}

func writeFile(p string, v interface{}) error {
	b, err := types.Encode(v)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(p, b, 0600)
}

var keyFlag = &cli.StringFlag{
	Name:  "key",
	Usage: "pre key to use; defaults to identity.key",
}

// preKey loads the pre secret key named by --key or the configured default.
func preKey(cctx *cli.Context, rep repo.Repo) (*pre.SecretKey, error) {
	s := cctx.String("key")
	if s == "" {
		s = rep.Config().Identity.Key
	}
	addr, err := address.NewFromString(s)
	if err != nil {
		return nil, xerrors.Errorf("key %q: %w", s, err)
	}
	return rep.Wallet().PRE(addr)
}

var preEncryptCmd = &cli.Command{
	Name:  "encrypt",
	Usage: "encrypt a file under a public key",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true},
		&cli.StringFlag{Name: "out", Required: true},
		&cli.StringFlag{Name: "to", Usage: "printable public key; defaults to the local pre key"},
		keyFlag,
	},
	Action: func(cctx *cli.Context) error {
		data, err := ioutil.ReadFile(cctx.String("in"))
		if err != nil {
			return err
		}

		var pk *pre.PublicKey
		if to := cctx.String("to"); to != "" {
			addr, err := address.NewFromString(to)
			if err != nil {
				return err
			}
			pk, err = addr.PublicKey()
			if err != nil {
				return err
			}
		} else {
			rep, err := openRepo(cctx)
			if err != nil {
				return err
			}
			sk, err := preKey(cctx, rep)
			_ = rep.Close()
			if err != nil {
				return err
			}
			pk = sk.PublicKey()
		}

		c, ct, err := pre.Encrypt(pk, data)
		if err != nil {
			return err
		}
		return writeFile(cctx.String("out"), &sealed{Capsule: c.Bytes(), Ciphertext: ct})
	},
}

var preDecryptCmd = &cli.Command{
	Name:  "decrypt",
	Usage: "decrypt a file encrypted to one of the local pre keys",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true},
		&cli.StringFlag{Name: "out", Required: true},
		keyFlag,
	},
	Action: func(cctx *cli.Context) error {
		var s sealed
		if err := readFile(cctx.String("in"), &s); err != nil {
			return err
		}
		c, err := pre.CapsuleFromBytes(s.Capsule)
		if err != nil {
			return err
		}

		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		sk, err := preKey(cctx, rep)
		if err != nil {
			return err
		}

		pt, err := pre.DecryptOriginal(sk, c, s.Ciphertext)
		if err != nil {
			return err
		}
		return ioutil.WriteFile(cctx.String("out"), pt, 0600)
	},
}

var preKFragsCmd = &cli.Command{
	Name:  "kfrags",
	Usage: "split re-encryption rights to a receiver into kfrags",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "receiving", Usage: "printable public key of the receiver", Required: true},
		&cli.IntFlag{Name: "threshold", Aliases: []string{"m"}, Value: 2},
		&cli.IntFlag{Name: "shares", Aliases: []string{"n"}, Value: 3},
		&cli.StringFlag{Name: "out", Required: true},
		keyFlag,
	},
	Action: func(cctx *cli.Context) error {
		raddr, err := address.NewFromString(cctx.String("receiving"))
		if err != nil {
			return err
		}
		receiving, err := raddr.PublicKey()
		if err != nil {
			return err
		}

		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		delegating, err := preKey(cctx, rep)
		if err != nil {
			return err
		}

		m, n := cctx.Int("threshold"), cctx.Int("shares")
		vkfs, err := pre.GenerateKFrags(delegating, receiving, delegating.Signer(), m, n, true, true)
		if err != nil {
			return err
		}

		ks := &kfragSet{
			Threshold:  m,
			Delegating: delegating.PublicKey().Bytes(),
			Receiving:  receiving.Bytes(),
			Verifying:  delegating.PublicKey().Bytes(),
			KFrags:     make([][]byte, 0, n),
		}
		for _, vkf := range vkfs {
			ks.KFrags = append(ks.KFrags, vkf.Bytes())
			fmt.Println("kfrag:", vkf.ID())
		}
		return writeFile(cctx.String("out"), ks)
	},
}

var policyFlag = &cli.StringFlag{
	Name:     "policy",
	Usage:    "policy id",
	Required: true,
}

var preGrantCmd = &cli.Command{
	Name:  "grant",
	Usage: "store one kfrag on this node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "kfrags", Required: true},
		&cli.IntFlag{Name: "index", Usage: "which kfrag of the set"},
		policyFlag,
	},
	Action: func(cctx *cli.Context) error {
		policy, err := types.ParsePolicyID(cctx.String("policy"))
		if err != nil {
			return err
		}
		var ks kfragSet
		if err := readFile(cctx.String("kfrags"), &ks); err != nil {
			return err
		}
		i := cctx.Int("index")
		if i < 0 || i >= len(ks.KFrags) {
			return xerrors.Errorf("index %d out of %d kfrags", i, len(ks.KFrags))
		}
		kf, err := pre.KeyFragFromBytes(ks.KFrags[i])
		if err != nil {
			return err
		}
		verifying, delegating, receiving, err := ks.keys()
		if err != nil {
			return err
		}

		n, err := openNode(cctx, basenode.Proxy(true))
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)
		if n.Ursula == nil {
			return basenode.ErrNoStamp
		}

		id, err := n.Ursula.Grant(cctx.Context, policy, kf, verifying, delegating, receiving)
		if err != nil {
			return err
		}
		fmt.Println("granted kfrag", id, "to", n.Ursula.ID())
		return nil
	},
}

var preRevokeCmd = &cli.Command{
	Name:  "revoke",
	Usage: "drop the kfrags this node holds for a policy",
	Flags: []cli.Flag{policyFlag},
	Action: func(cctx *cli.Context) error {
		policy, err := types.ParsePolicyID(cctx.String("policy"))
		if err != nil {
			return err
		}

		n, err := openNode(cctx, basenode.Proxy(true))
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)
		if n.Ursula == nil {
			return basenode.ErrNoStamp
		}

		cnt, err := n.Ursula.Revoke(cctx.Context, policy)
		if err != nil {
			return err
		}
		fmt.Println("revoked", cnt, "kfrags")
		return nil
	},
}

var preRetrieveCmd = &cli.Command{
	Name:  "retrieve",
	Usage: "re-encrypt through one proxy per kfrag and decrypt as the receiver",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true},
		&cli.StringFlag{Name: "kfrags", Required: true},
		&cli.StringFlag{Name: "out", Required: true},
		&cli.StringFlag{Name: "metadata", Usage: "conditions bound into every cfrag"},
		keyFlag,
	},
	Action: func(cctx *cli.Context) error {
		var s sealed
		if err := readFile(cctx.String("in"), &s); err != nil {
			return err
		}
		c, err := pre.CapsuleFromBytes(s.Capsule)
		if err != nil {
			return err
		}
		var ks kfragSet
		if err := readFile(cctx.String("kfrags"), &ks); err != nil {
			return err
		}
		verifying, delegating, receiving, err := ks.keys()
		if err != nil {
			return err
		}

		n, err := openNode(cctx)
		if err != nil {
			return err
		}
		defer n.Stop(cctx.Context)

		sk, err := preKey(cctx, n.Repo())
		if err != nil {
			return err
		}
		if !sk.PublicKey().Equals(receiving) {
			return xerrors.Errorf("kfrags are for %s, not this key", address.FromPublicKey(receiving))
		}

		targets, err := localProxies(cctx.Context, n, &ks, verifying, delegating, receiving)
		if err != nil {
			return err
		}

		cfg := n.Repo().Config()
		opts := retrieval.Options{Concurrency: cfg.Retrieval.Concurrency}
		if rp, err := n.Reporter(); err == nil {
			opts.Reporter = rp
		}

		ctx, cancel := context.WithTimeout(cctx.Context, cfg.RetrievalTimeout())
		defer cancel()

		r := retrieval.New(sk, delegating, verifying, opts)
		pt, err := r.Decrypt(ctx, c, s.Ciphertext, []byte(cctx.String("metadata")), ks.Threshold, targets)
		if err != nil {
			fmt.Println(ansi.Color(err.Error(), "red"))
			return err
		}
		return ioutil.WriteFile(cctx.String("out"), pt, 0600)
	},
}

// localProxies starts an in-memory ursula per kfrag, each under a fresh
// stamp, sharing the node's ledger.
func localProxies(ctx context.Context, n *basenode.Node, ks *kfragSet, verifying, delegating, receiving *pre.PublicKey) ([]retrieval.Target, error) {
	policy := types.NewPolicyID()
	targets := make([]retrieval.Target, 0, len(ks.KFrags))
	for i, b := range ks.KFrags {
		kf, err := pre.KeyFragFromBytes(b)
		if err != nil {
			return nil, xerrors.Errorf("kfrag %d: %w", i, err)
		}
		stamp, err := signature.GenerateKey(sig_common.Secp256k1)
		if err != nil {
			return nil, err
		}
		u, err := ursula.New(ctx, kv.NewMemStore(), stamp, n.Ledger, ursula.Options{Clock: n.Clock()})
		if err != nil {
			return nil, err
		}
		id, err := u.Grant(ctx, policy, kf, verifying, delegating, receiving)
		if err != nil {
			return nil, xerrors.Errorf("kfrag %d: %w", i, err)
		}
		targets = append(targets, retrieval.Target{Proxy: u, KFragID: id, Stamp: u.Stamp()})
	}
	return targets, nil
}
