package store

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const KeyDelimiter = "/"

type MetaType uint32

const (
	MetaType_Unknown MetaType = iota

	// ledger state
	MetaType_ST_RootKey
	MetaType_ST_HeightKey
	MetaType_ST_PeriodKey
	MetaType_ST_SupplyKey
	MetaType_ST_FeePoolKey
	MetaType_ST_StakerKey
	MetaType_ST_StakersKey // insertion-ordered staker list
	MetaType_ST_WorkerKey
	MetaType_ST_BalanceKey
	MetaType_ST_NonceKey
	MetaType_ST_PolicyKey
	MetaType_ST_NodeFeeKey
	MetaType_ST_LockedKey
	MetaType_ST_SnapshotKey
	MetaType_ST_EvidenceKey
	MetaType_ST_EventKey

	// transactions
	MetaType_TX_MessageKey
	MetaType_TX_BlockKey
	MetaType_TX_HeightKey
	MetaType_TX_MessageStateKey

	// proxy node
	MetaType_UR_KFragKey
	MetaType_UR_PolicyKey
)

func (m MetaType) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// NewKey joins a meta type and ids with "/". Byte slices are hex encoded so
// keys stay printable and split cleanly.
func NewKey(vs ...interface{}) []byte {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteString(KeyDelimiter)
		}
		switch val := v.(type) {
		case MetaType:
			b.WriteString(val.String())
		case uint64:
			b.WriteString(strconv.FormatUint(val, 10))
		case uint32:
			b.WriteString(strconv.FormatUint(uint64(val), 10))
		case int:
			b.WriteString(strconv.Itoa(val))
		case string:
			b.WriteString(val)
		case []byte:
			b.WriteString(hex.EncodeToString(val))
		case fmt.Stringer:
			b.WriteString(val.String())
		default:
			b.WriteString(fmt.Sprint(val))
		}
	}
	return []byte(b.String())
}

// Prefix is NewKey with a trailing delimiter, for iterating one meta type.
func Prefix(vs ...interface{}) []byte {
	return append(NewKey(vs...), KeyDelimiter...)
}

// SplitKey returns the components after the meta type.
func SplitKey(key []byte) []string {
	parts := strings.Split(string(key), KeyDelimiter)
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}
