package ursula

import (
	"encoding/hex"

	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
)

// grant is a stored kfrag together with the keys needed to re-verify it.
type grant struct {
	Policy     types.PolicyID
	KFrag      []byte
	Verifying  []byte
	Delegating []byte `cbor:",omitempty"`
	Receiving  []byte `cbor:",omitempty"`
}

func (g *grant) Serialize() ([]byte, error) {
	return types.Encode(g)
}

func (g *grant) Deserialize(b []byte) error {
	return types.Decode(b, g)
}

func optionalKey(b []byte) (*pre.PublicKey, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return pre.PublicKeyFromBytes(b)
}

// verify re-checks the kfrag read back from disk.
func (g *grant) verify() (*pre.VerifiedKeyFrag, error) {
	kf, err := pre.KeyFragFromBytes(g.KFrag)
	if err != nil {
		return nil, err
	}
	verifying, err := pre.PublicKeyFromBytes(g.Verifying)
	if err != nil {
		return nil, err
	}
	delegating, err := optionalKey(g.Delegating)
	if err != nil {
		return nil, err
	}
	receiving, err := optionalKey(g.Receiving)
	if err != nil {
		return nil, err
	}
	return kf.Verify(verifying, delegating, receiving)
}

func kfragKey(id pre.KFragID) []byte {
	return store.NewKey(store.MetaType_UR_KFragKey, id[:])
}

func policyKey(policy types.PolicyID, id pre.KFragID) []byte {
	return store.NewKey(store.MetaType_UR_PolicyKey, policy.String(), id[:])
}

func (n *Node) putGrant(g *grant) error {
	kf, err := pre.KeyFragFromBytes(g.KFrag)
	if err != nil {
		return err
	}
	val, err := g.Serialize()
	if err != nil {
		return err
	}

	txn, err := n.ds.NewTxnStore(true)
	if err != nil {
		return err
	}
	defer txn.Discard()

	err = txn.Put(kfragKey(kf.ID), val)
	if err != nil {
		return err
	}
	err = txn.Put(policyKey(g.Policy, kf.ID), nil)
	if err != nil {
		return err
	}
	return txn.Commit()
}

func (n *Node) getGrant(id pre.KFragID) (*grant, error) {
	val, err := n.ds.Get(kfragKey(id))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownKFrag)
	}
	g := new(grant)
	err = g.Deserialize(val)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (n *Node) deleteGrant(policy types.PolicyID, id pre.KFragID) error {
	txn, err := n.ds.NewTxnStore(true)
	if err != nil {
		return err
	}
	defer txn.Discard()

	err = txn.Delete(kfragKey(id))
	if err != nil {
		return err
	}
	err = txn.Delete(policyKey(policy, id))
	if err != nil {
		return err
	}
	return txn.Commit()
}

func (n *Node) policyKFrags(policy types.PolicyID) ([]pre.KFragID, error) {
	var ids []pre.KFragID
	var ierr error
	n.ds.IterKeys(store.Prefix(store.MetaType_UR_PolicyKey, policy.String()), func(k []byte) error {
		parts := store.SplitKey(k)
		if len(parts) != 2 {
			ierr = xerrors.Errorf("malformed policy key %q", k)
			return ierr
		}
		var id pre.KFragID
		b, err := hex.DecodeString(parts[1])
		if err != nil || len(b) != len(id) {
			ierr = xerrors.Errorf("malformed kfrag id in %q", k)
			return ierr
		}
		copy(id[:], b)
		ids = append(ids, id)
		return nil
	})
	if ierr != nil {
		return nil, ierr
	}
	return ids, nil
}
