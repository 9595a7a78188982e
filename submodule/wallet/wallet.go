package wallet

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/pre"
)

// Kind tells what a stored secret is used for.
type Kind byte

const (
	KindUnknown Kind = iota
	// KindStamp signs ledger messages and re-encryption responses
	KindStamp
	// KindPRE delegates or receives re-encryption rights
	KindPRE
)

func (k Kind) String() string {
	switch k {
	case KindStamp:
		return "stamp"
	case KindPRE:
		return "pre"
	default:
		return "unknown"
	}
}

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrWrongKind   = errors.New("key is of another kind")
)

type Entry struct {
	Address address.Address
	Kind    Kind
}

// Wallet keeps password-encrypted keys, one file per key named by its
// address.
type Wallet struct {
	lk       sync.Mutex
	p        string
	password string

	scryptN, scryptP int

	stamps map[address.Address]sig_common.PrivKey
	pres   map[address.Address]*pre.SecretKey
}

func New(p, password string) (*Wallet, error) {
	return newWallet(p, password, StandardScryptN, StandardScryptP)
}

// NewLight uses cheap scrypt parameters; for tests and throwaway keys.
func NewLight(p, password string) (*Wallet, error) {
	return newWallet(p, password, LightScryptN, LightScryptP)
}

func newWallet(p, password string, n, pp int) (*Wallet, error) {
	err := os.MkdirAll(p, 0700)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		p:        p,
		password: password,
		scryptN:  n,
		scryptP:  pp,
		stamps:   make(map[address.Address]sig_common.PrivKey),
		pres:     make(map[address.Address]*pre.SecretKey),
	}, nil
}

// NewStamp creates and stores a signing key.
func (w *Wallet) NewStamp() (address.Address, error) {
	priv, err := signature.GenerateKey(sig_common.Secp256k1)
	if err != nil {
		return address.Undef, err
	}
	return w.ImportStamp(priv)
}

func (w *Wallet) ImportStamp(priv sig_common.PrivKey) (address.Address, error) {
	pub, err := priv.GetPublic().Raw()
	if err != nil {
		return address.Undef, err
	}
	addr, err := address.NewAddress(pub)
	if err != nil {
		return address.Undef, err
	}
	secret, err := priv.Raw()
	if err != nil {
		return address.Undef, err
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	err = w.store(KindStamp, addr, secret)
	if err != nil {
		return address.Undef, err
	}
	w.stamps[addr] = priv
	return addr, nil
}

// NewPRE creates and stores a delegating or receiving key.
func (w *Wallet) NewPRE() (address.Address, error) {
	return w.ImportPRE(pre.GenerateSecretKey())
}

func (w *Wallet) ImportPRE(sk *pre.SecretKey) (address.Address, error) {
	addr := address.FromPublicKey(sk.PublicKey())

	w.lk.Lock()
	defer w.lk.Unlock()
	err := w.store(KindPRE, addr, sk.Bytes())
	if err != nil {
		return address.Undef, err
	}
	w.pres[addr] = sk
	return addr, nil
}

func (w *Wallet) store(kind Kind, addr address.Address, secret []byte) error {
	key, err := newKey(kind, secret, addr.String())
	if err != nil {
		return err
	}
	keyjson, err := encryptKey(key, w.password, w.scryptN, w.scryptP)
	if err != nil {
		return err
	}
	return writeKeyFile(filepath.Join(w.p, addr.String()), keyjson)
}

func (w *Wallet) load(addr address.Address, kind Kind) (*Key, error) {
	keyjson, err := ioutil.ReadFile(filepath.Join(w.p, addr.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("%s: %w", addr, ErrKeyNotFound)
		}
		return nil, err
	}
	key, err := decryptKey(keyjson, w.password)
	if err != nil {
		return nil, err
	}
	// no swapped files
	if key.Address != addr.String() {
		return nil, xerrors.Errorf("key content mismatch: have %s, want %s", key.Address, addr)
	}
	if key.Kind != kind {
		return nil, xerrors.Errorf("%s is a %s key: %w", addr, key.Kind, ErrWrongKind)
	}
	return key, nil
}

func (w *Wallet) Stamp(addr address.Address) (sig_common.PrivKey, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	if priv, ok := w.stamps[addr]; ok {
		return priv, nil
	}
	key, err := w.load(addr, KindStamp)
	if err != nil {
		return nil, err
	}
	priv, err := signature.ParsePrivateKey(key.Secret, sig_common.Secp256k1)
	if err != nil {
		return nil, err
	}
	w.stamps[addr] = priv
	return priv, nil
}

func (w *Wallet) PRE(addr address.Address) (*pre.SecretKey, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	if sk, ok := w.pres[addr]; ok {
		return sk, nil
	}
	key, err := w.load(addr, KindPRE)
	if err != nil {
		return nil, err
	}
	sk, err := pre.SecretKeyFromBytes(key.Secret)
	if err != nil {
		return nil, err
	}
	w.pres[addr] = sk
	return sk, nil
}

// List reads every key file; it needs the password to learn the kinds.
func (w *Wallet) List() ([]Entry, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	files, err := ioutil.ReadDir(w.p)
	if err != nil {
		return nil, err
	}

	var res []Entry
	for _, fi := range files {
		if fi.IsDir() {
			continue
		}
		addr, err := address.NewFromString(fi.Name())
		if err != nil {
			continue
		}
		keyjson, err := ioutil.ReadFile(filepath.Join(w.p, fi.Name()))
		if err != nil {
			return nil, err
		}
		key, err := decryptKey(keyjson, w.password)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", addr, err)
		}
		res = append(res, Entry{Address: addr, Kind: key.Kind})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Address.String() < res[j].Address.String()
	})
	return res, nil
}
