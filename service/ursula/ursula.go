package ursula

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
	"github.com/memoio/go-mefs-pre/submodule/metrics"
)

var logger = logging.Logger("ursula")

var (
	ErrUnknownKFrag = errors.New("no kfrag held under this id")
	ErrKFragExists  = errors.New("kfrag already held")
)

// Ledger is the part of the ledger a proxy needs to stay committed.
type Ledger interface {
	Params() *ledger.Params
	GetNonce(addr common.Address) (uint64, error)
	GetLastCommittedPeriod(addr common.Address) (uint64, error)
	GetWorkerStaker(worker common.Address) (common.Address, bool, error)
	ApplyMsg(ctx context.Context, sm *tx.SignedMessage, ts int64) (*tx.Receipt, error)
}

type Options struct {
	CacheSize      int
	CommitInterval time.Duration
	Clock          ledger.Clock
}

func DefaultOptions() Options {
	return Options{
		CacheSize:      1024,
		CommitInterval: time.Minute,
		Clock:          ledger.SystemClock{},
	}
}

// Request asks the holder of KFragID to re-encrypt one capsule.
type Request struct {
	KFragID  pre.KFragID
	Capsule  []byte
	Metadata []byte
}

// Response carries the cfrag and the stamp signature over
// tx.EvidenceMessage(capsule, cfrag, metadata), which makes a wrong
// cfrag attributable on the ledger.
type Response struct {
	CFrag     []byte
	Stamp     []byte
	Signature []byte
}

// Node is one proxy: it keeps the kfrags granted to it, answers
// re-encryption requests and commits to every next period.
type Node struct {
	ctx context.Context

	ds    store.KVStore
	cache *lru.ARCCache

	stamp    sig_common.PrivKey
	stampPub []byte
	account  common.Address

	lk     sync.Mutex // serializes commitments
	ledger Ledger
	opts   Options
}

func New(ctx context.Context, ds store.KVStore, stamp sig_common.PrivKey, l Ledger, opts Options) (*Node, error) {
	def := DefaultOptions()
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = def.CommitInterval
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}

	cache, err := lru.NewARC(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	pub, err := stamp.GetPublic().Raw()
	if err != nil {
		return nil, err
	}
	acc, err := signature.Address(stamp.GetPublic())
	if err != nil {
		return nil, err
	}

	return &Node{
		ctx:      ctx,
		ds:       ds,
		cache:    cache,
		stamp:    stamp,
		stampPub: pub,
		account:  acc,
		ledger:   l,
		opts:     opts,
	}, nil
}

// Stamp is the compressed public key this node signs responses with.
func (n *Node) Stamp() []byte {
	return append([]byte{}, n.stampPub...)
}

// ID is the printable stamp key.
func (n *Node) ID() string {
	addr, err := address.NewAddress(n.stampPub)
	if err != nil {
		return n.account.String()
	}
	return addr.String()
}

// Account is the ledger address of the stamp key.
func (n *Node) Account() common.Address {
	return n.account
}

// Grant checks a kfrag against the keys it was issued for and stores it.
func (n *Node) Grant(ctx context.Context, policy types.PolicyID, kf *pre.KeyFrag, verifying, delegating, receiving *pre.PublicKey) (pre.KFragID, error) {
	vkf, err := kf.Verify(verifying, delegating, receiving)
	if err != nil {
		stats.Record(ctx, metrics.ReEncryptFailure.M(1))
		return pre.KFragID{}, err
	}

	has, err := n.ds.Has(kfragKey(kf.ID))
	if err != nil {
		return pre.KFragID{}, err
	}
	if has {
		return pre.KFragID{}, xerrors.Errorf("%s: %w", kf.ID, ErrKFragExists)
	}

	g := &grant{
		Policy:     policy,
		KFrag:      vkf.Bytes(),
		Verifying:  verifying.Bytes(),
		Delegating: keyBytes(delegating),
		Receiving:  keyBytes(receiving),
	}
	err = n.putGrant(g)
	if err != nil {
		return pre.KFragID{}, err
	}

	n.cache.Add(kf.ID, vkf)
	logger.Debugf("granted kfrag %s under policy %s", kf.ID, policy)
	return kf.ID, nil
}

// Revoke drops every kfrag held under policy.
func (n *Node) Revoke(ctx context.Context, policy types.PolicyID) (int, error) {
	ids, err := n.policyKFrags(policy)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		err := n.deleteGrant(policy, id)
		if err != nil {
			return 0, err
		}
		n.cache.Remove(id)
	}
	logger.Debugf("revoked %d kfrags of policy %s", len(ids), policy)
	return len(ids), nil
}

// KFrags lists the kfrag ids held under policy.
func (n *Node) KFrags(policy types.PolicyID) ([]pre.KFragID, error) {
	return n.policyKFrags(policy)
}

func (n *Node) verifiedKFrag(id pre.KFragID) (*pre.VerifiedKeyFrag, error) {
	val, ok := n.cache.Get(id)
	if ok {
		return val.(*pre.VerifiedKeyFrag), nil
	}

	g, err := n.getGrant(id)
	if err != nil {
		return nil, err
	}
	vkf, err := g.verify()
	if err != nil {
		return nil, err
	}
	n.cache.Add(id, vkf)
	return vkf, nil
}

// ReEncrypt applies the held kfrag to the capsule and signs the result.
func (n *Node) ReEncrypt(ctx context.Context, req *Request) (*Response, error) {
	res, err := n.reEncrypt(req)
	if err != nil {
		stats.Record(ctx, metrics.ReEncryptFailure.M(1))
		logger.Debugf("re-encrypt with kfrag %s: %s", req.KFragID, err)
		return nil, err
	}
	stats.Record(ctx, metrics.ReEncrypted.M(1))
	return res, nil
}

func (n *Node) reEncrypt(req *Request) (*Response, error) {
	vkf, err := n.verifiedKFrag(req.KFragID)
	if err != nil {
		return nil, err
	}

	c, err := pre.CapsuleFromBytes(req.Capsule)
	if err != nil {
		return nil, err
	}

	vcf, err := pre.ReEncrypt(c, vkf, req.Metadata)
	if err != nil {
		return nil, err
	}
	cfb := vcf.Bytes()

	sig, err := n.stamp.Sign(tx.EvidenceMessage(req.Capsule, cfb, req.Metadata))
	if err != nil {
		return nil, err
	}

	return &Response{
		CFrag:     cfb,
		Stamp:     n.Stamp(),
		Signature: sig,
	}, nil
}

func keyBytes(pk *pre.PublicKey) []byte {
	if pk == nil {
		return nil
	}
	return pk.Bytes()
}
