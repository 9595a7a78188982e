package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")
	Method, _  = tag.NewKey("method")
	Proxy, _   = tag.NewKey("proxy")
)

var (
	// common
	PreInfo = stats.Int64("info", "Node info", stats.UnitDimensionless)

	// re-encryption
	ReEncrypted           = stats.Int64("pre/reencrypted", "Counter for cfrags produced", stats.UnitDimensionless)
	ReEncryptFailure      = stats.Int64("pre/reencrypt_failure", "Counter for rejected re-encryption requests", stats.UnitDimensionless)
	ProofFailure          = stats.Int64("pre/proof_failure", "Counter for cfrags failing verification", stats.UnitDimensionless)
	RetrievalDuration     = stats.Float64("pre/retrieval_ms", "Time spent gathering cfrags", stats.UnitMilliseconds)
	RetrievalInsufficient = stats.Int64("pre/retrieval_insufficient", "Counter for retrievals without enough valid cfrags", stats.UnitDimensionless)

	// ledger
	TxMessageSuccess = stats.Int64("message/success", "Counter for applied messages", stats.UnitDimensionless)
	TxMessageFailure = stats.Int64("message/failure", "Counter for rejected messages", stats.UnitDimensionless)
	TxMessageApply   = stats.Float64("message/apply_total_ms", "Time spent applying a message", stats.UnitMilliseconds)
	TxBlockHeight    = stats.Int64("block/height", "Applied height of block", stats.UnitDimensionless)
	TxBlockApply     = stats.Float64("block/apply_total_ms", "Time spent applying block", stats.UnitMilliseconds)
	LedgerPeriod     = stats.Int64("ledger/period", "Last applied period", stats.UnitDimensionless)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "pre node information",
		Measure:     PreInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}

	ReEncryptedView = &view.View{
		Measure:     ReEncrypted,
		Aggregation: view.Count(),
	}
	ReEncryptFailureView = &view.View{
		Measure:     ReEncryptFailure,
		Aggregation: view.Count(),
	}
	ProofFailureView = &view.View{
		Measure:     ProofFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Proxy},
	}
	RetrievalDurationView = &view.View{
		Measure:     RetrievalDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	RetrievalInsufficientView = &view.View{
		Measure:     RetrievalInsufficient,
		Aggregation: view.Count(),
	}

	TxMessageSuccessView = &view.View{
		Measure:     TxMessageSuccess,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Method},
	}
	TxMessageFailureView = &view.View{
		Measure:     TxMessageFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Method},
	}
	TxMessageApplyView = &view.View{
		Measure:     TxMessageApply,
		Aggregation: defaultMillisecondsDistribution,
	}
	TxBlockHeightView = &view.View{
		Measure:     TxBlockHeight,
		Aggregation: view.LastValue(),
	}
	TxBlockApplyView = &view.View{
		Measure:     TxBlockApply,
		Aggregation: defaultMillisecondsDistribution,
	}
	LedgerPeriodView = &view.View{
		Measure:     LedgerPeriod,
		Aggregation: view.LastValue(),
	}
)

var DefaultViews = func() []*view.View {
	views := []*view.View{
		InfoView,

		ReEncryptedView,
		ReEncryptFailureView,
		ProofFailureView,
		RetrievalDurationView,
		RetrievalInsufficientView,

		TxMessageSuccessView,
		TxMessageFailureView,
		TxMessageApplyView,
		TxBlockHeightView,
		TxBlockApplyView,
		LedgerPeriodView,
	}
	return views
}()

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
	}
}

// RecordWith records m under one extra tag; tagging errors drop the sample.
func RecordWith(ctx context.Context, key tag.Key, val string, m stats.Measurement) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(key, val)}, m)
}
