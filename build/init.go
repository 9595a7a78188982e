package build

// StrategyUpdateMap maps a ledger strategy version to the block height it
// becomes active at.
var StrategyUpdateMap map[uint32]uint64

const (
	StrategyV1       uint32 = 1
	StrategyV1Height uint64 = 0
)

func init() {
	StrategyUpdateMap = make(map[uint32]uint64)
	StrategyUpdateMap[StrategyV1] = StrategyV1Height
}

// StrategyAt returns the newest strategy version active at height.
func StrategyAt(height uint64) uint32 {
	var ver uint32
	for v, h := range StrategyUpdateMap {
		if h <= height && v > ver {
			ver = v
		}
	}
	return ver
}
