package pre

import (
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
)

// reader walks a fixed-width encoding; the first failure sticks.
type reader struct {
	b   []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = xerrors.Errorf("need %d more bytes, have %d: %w", n, len(r.b), ErrInvalidEncoding)
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) point() curve.Point {
	b := r.next(curve.PointSize)
	if r.err != nil {
		return curve.Point{}
	}
	p, err := curve.PointFromBytes(b)
	if err != nil {
		r.err = err
	}
	return p
}

func (r *reader) scalar() curve.Scalar {
	b := r.next(curve.ScalarSize)
	if r.err != nil {
		return curve.Scalar{}
	}
	s, err := curve.ScalarFromBytes(b)
	if err != nil {
		r.err = err
	}
	return s
}

// done reports trailing bytes as an error.
func (r *reader) done() error {
	if r.err == nil && len(r.b) != 0 {
		r.err = xerrors.Errorf("%d trailing bytes: %w", len(r.b), ErrInvalidEncoding)
	}
	return r.err
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
