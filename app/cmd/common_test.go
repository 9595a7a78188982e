package cmd

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/build"
)

func TestTokenFormat(t *testing.T) {
	v, err := parseToken("15000")
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(15000), build.Decimals), v)
	require.Equal(t, "15000 PRE", formatToken(v))

	v, err = parseToken("0.5")
	require.NoError(t, err)
	require.Equal(t, "0.5 PRE", formatToken(v))

	v, err = parseToken("1.000000000000000001")
	require.NoError(t, err)
	require.Equal(t, "1.000000000000000001 PRE", formatToken(v))

	_, err = parseToken("1.0000000000000000001")
	require.Error(t, err)
	_, err = parseToken("-1")
	require.Error(t, err)
	_, err = parseToken("abc")
	require.Error(t, err)

	require.Equal(t, "0 PRE", formatToken(nil))
}
