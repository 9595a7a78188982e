package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opencensus.io/stats"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/service/ursula"
	"github.com/memoio/go-mefs-pre/submodule/metrics"
)

var logger = logging.Logger("retrieval")

var (
	ErrBadStamp   = errors.New("response is not signed by the expected stamp")
	ErrNoResponse = errors.New("proxy returned no response")
)

// Proxy is one re-encryption node as seen by the receiver.
type Proxy interface {
	ID() string
	ReEncrypt(ctx context.Context, req *ursula.Request) (*ursula.Response, error)
}

// Target is a proxy and the kfrag it was granted. A non-empty Stamp pins
// the key the proxy must sign with.
type Target struct {
	Proxy   Proxy
	KFragID pre.KFragID
	Stamp   []byte
}

// Error lists why each contacted proxy did not contribute when fewer than
// Threshold valid fragments were gathered.
type Error struct {
	Threshold int
	Valid     int
	Failed    map[string]error
}

func (e *Error) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d valid fragments", e.Valid, e.Threshold)
	for _, id := range ids {
		fmt.Fprintf(&b, "; %s: %s", id, e.Failed[id])
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return pre.ErrInsufficientFragments
}

// Reporter takes evidence of an incorrect re-encryption.
type Reporter interface {
	Report(ctx context.Context, ev *tx.Evidence) error
}

type Options struct {
	Concurrency int
	Reporter    Reporter
}

func DefaultOptions() Options {
	return Options{Concurrency: 8}
}

// Retriever gathers fragments for one receiving key from the proxies of
// one delegation.
type Retriever struct {
	receiving  *pre.SecretKey
	delegating *pre.PublicKey
	verifying  *pre.PublicKey
	opts       Options
}

func New(receiving *pre.SecretKey, delegating, verifying *pre.PublicKey, opts Options) *Retriever {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	return &Retriever{
		receiving:  receiving,
		delegating: delegating,
		verifying:  verifying,
		opts:       opts,
	}
}

// Result holds the verified fragments and the evidence collected against
// proxies whose signed fragment failed verification.
type Result struct {
	CFrags   []*pre.VerifiedCapsuleFrag
	Evidence []*tx.Evidence
}

type gather struct {
	sync.Mutex
	threshold int
	cancel    context.CancelFunc

	seen   map[pre.KFragID]struct{}
	res    Result
	failed map[string]error
}

func (g *gather) done() bool {
	g.Lock()
	defer g.Unlock()
	return len(g.res.CFrags) >= g.threshold
}

func (g *gather) fail(id string, err error) {
	g.Lock()
	defer g.Unlock()
	g.failed[id] = err
}

func (g *gather) add(id string, vcf *pre.VerifiedCapsuleFrag) {
	g.Lock()
	defer g.Unlock()

	if len(g.res.CFrags) >= g.threshold {
		return
	}
	kid := vcf.CapsuleFrag().KFragID
	if _, ok := g.seen[kid]; ok {
		g.failed[id] = &pre.VerificationError{KFragID: kid, Err: pre.ErrDuplicateFragment}
		return
	}
	g.seen[kid] = struct{}{}
	g.res.CFrags = append(g.res.CFrags, vcf)
	if len(g.res.CFrags) >= g.threshold {
		g.cancel()
	}
}

func (g *gather) accuse(id string, ev *tx.Evidence, err error) {
	g.Lock()
	defer g.Unlock()
	g.failed[id] = err
	g.res.Evidence = append(g.res.Evidence, ev)
}

// Retrieve asks the targets to re-encrypt the capsule and returns once
// threshold of them answered with fragments that verify. Remaining requests
// are cancelled. Nothing is retried.
func (r *Retriever) Retrieve(ctx context.Context, c *pre.Capsule, metadata []byte, threshold int, targets []Target) (*Result, error) {
	if threshold < 1 || threshold > len(targets) {
		return nil, xerrors.Errorf("threshold %d of %d proxies: %w", threshold, len(targets), pre.ErrInvalidThreshold)
	}
	defer metrics.Timer(ctx, metrics.RetrievalDuration)()

	capsule := c.Bytes()
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &gather{
		threshold: threshold,
		cancel:    cancel,
		seen:      make(map[pre.KFragID]struct{}, threshold),
		failed:    make(map[string]error),
	}

	sm := semaphore.NewWeighted(int64(r.opts.Concurrency))
	eg, ectx := errgroup.WithContext(gctx)
	for _, t := range targets {
		err := sm.Acquire(ectx, 1)
		if err != nil {
			break
		}
		if g.done() {
			sm.Release(1)
			break
		}

		t := t
		eg.Go(func() error {
			defer sm.Release(1)
			r.ask(ectx, g, c, capsule, metadata, t)
			return nil
		})
	}
	eg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.report(ctx, g.res.Evidence)

	if len(g.res.CFrags) < threshold {
		stats.Record(ctx, metrics.RetrievalInsufficient.M(1))
		return &g.res, &Error{Threshold: threshold, Valid: len(g.res.CFrags), Failed: g.failed}
	}
	return &g.res, nil
}

// ask sends one request and files its outcome.
func (r *Retriever) ask(ctx context.Context, g *gather, c *pre.Capsule, capsule, metadata []byte, t Target) {
	id := t.Proxy.ID()
	res, err := t.Proxy.ReEncrypt(ctx, &ursula.Request{
		KFragID:  t.KFragID,
		Capsule:  capsule,
		Metadata: metadata,
	})
	if err != nil {
		g.fail(id, err)
		return
	}
	if res == nil {
		g.fail(id, ErrNoResponse)
		return
	}

	if len(t.Stamp) > 0 && !bytes.Equal(t.Stamp, res.Stamp) {
		g.fail(id, ErrBadStamp)
		return
	}
	ok, err := signature.Verify(res.Stamp, tx.EvidenceMessage(capsule, res.CFrag, metadata), res.Signature)
	if err != nil || !ok {
		// unsigned output cannot be pinned on anyone
		g.fail(id, ErrBadStamp)
		return
	}

	vcf, err := r.verify(c, res.CFrag, metadata)
	if err != nil {
		metrics.RecordWith(ctx, metrics.Proxy, id, metrics.ProofFailure.M(1))
		logger.Warnf("proxy %s returned an invalid fragment: %s", id, err)
		g.accuse(id, r.evidence(capsule, metadata, res), err)
		return
	}
	g.add(id, vcf)
}

func (r *Retriever) verify(c *pre.Capsule, b, metadata []byte) (*pre.VerifiedCapsuleFrag, error) {
	cf, err := pre.CapsuleFragFromBytes(b)
	if err != nil {
		return nil, err
	}
	return cf.Verify(c, r.verifying, r.delegating, r.receiving.PublicKey(), metadata)
}

func (r *Retriever) evidence(capsule, metadata []byte, res *ursula.Response) *tx.Evidence {
	return &tx.Evidence{
		Capsule:         capsule,
		CFrag:           res.CFrag,
		Delegating:      r.delegating.Bytes(),
		Receiving:       r.receiving.PublicKey().Bytes(),
		Verifying:       r.verifying.Bytes(),
		Metadata:        metadata,
		UrsulaStamp:     res.Stamp,
		UrsulaSignature: res.Signature,
	}
}

func (r *Retriever) report(ctx context.Context, evs []*tx.Evidence) {
	if r.opts.Reporter == nil {
		return
	}
	for _, ev := range evs {
		err := r.opts.Reporter.Report(ctx, ev)
		if err != nil {
			logger.Warnf("report evidence %s: %s", ev.ID(), err)
		}
	}
}

// Decrypt retrieves fragments and opens the ciphertext with them.
func (r *Retriever) Decrypt(ctx context.Context, c *pre.Capsule, ciphertext, metadata []byte, threshold int, targets []Target) ([]byte, error) {
	res, err := r.Retrieve(ctx, c, metadata, threshold, targets)
	if err != nil {
		return nil, err
	}
	return pre.DecryptReencrypted(r.receiving, r.delegating, c, res.CFrags, threshold, ciphertext)
}
