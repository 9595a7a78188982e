package kv

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/memoio/go-mefs-pre/lib/types/store"
)

func testStore(t *testing.T, d store.KVStore) {
	testKey := []byte("/test")
	testVal := []byte("aaaaa")

	err := d.Put(testKey, testVal)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		tkey := append([]byte("/prefix/"), []byte(strconv.Itoa(i))...)
		err = d.Put(tkey, testVal)
		if err != nil {
			t.Fatal(err)
		}
	}

	ok, err := d.Has(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("not have")
	}

	val, err := d.Get(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(val, testVal) {
		t.Fatal("not equal")
	}

	val, err = d.Get([]byte("/missing"))
	if err != nil || val != nil {
		t.Fatal("missing key should be nil, nil")
	}

	var keys []string
	n := d.Iter([]byte("/prefix/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if n != 3 || keys[0] != "/prefix/0" || keys[2] != "/prefix/2" {
		t.Fatal("iter", n, keys)
	}

	if d.IterKeys([]byte("/prefix/"), func(k []byte) error { return nil }) != 3 {
		t.Fatal("iter keys")
	}

	// a discarded transaction leaves nothing behind
	txn, err := d.NewTxnStore(true)
	if err != nil {
		t.Fatal(err)
	}
	txn.Put([]byte("/txn/a"), testVal)
	txn.Delete(testKey)
	txn.Discard()

	ok, _ = d.Has([]byte("/txn/a"))
	if ok {
		t.Fatal("discarded write visible")
	}

	txn, err = d.NewTxnStore(true)
	if err != nil {
		t.Fatal(err)
	}
	txn.Put([]byte("/txn/a"), testVal)
	txn.Delete(testKey)
	if v, _ := txn.Get([]byte("/txn/a")); !bytes.Equal(v, testVal) {
		t.Fatal("txn should read its own write")
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	ok, _ = d.Has([]byte("/txn/a"))
	if !ok {
		t.Fatal("committed write missing")
	}
	ok, _ = d.Has(testKey)
	if ok {
		t.Fatal("committed delete ignored")
	}
}

func TestBadgerStore(t *testing.T) {
	opt := DefaultOptions
	opt.GcInterval = 0
	d, err := NewBadgerStore(t.TempDir(), &opt)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	testStore(t, d)
}

func TestMemStore(t *testing.T) {
	d := NewMemStore()
	testStore(t, d)

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Put([]byte("a"), nil); err != ErrClosed {
		t.Fatal("put after close")
	}
}
