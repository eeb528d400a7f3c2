package predictor

import (
	"math"

	"SignalSentinel/internal/model"
)

// FeatureCount is the length of every feature vector.
const FeatureCount = 16

// FeatureInput carries what the feature vector is built from.
type FeatureInput struct {
	Ind        *model.IndicatorSet
	Funding    float64
	Imbalance  float64
	Outperform float64
	Score      float64
	Direction  model.Direction
	Class      model.TradeClass
}

// Features builds the fixed-order vector the estimator is trained on.
func Features(in FeatureInput) []float64 {
	ind := in.Ind
	f := make([]float64, FeatureCount)
	f[0] = ind.RSI14
	f[1] = ind.RSI7
	f[2] = ind.MACDHist
	f[3] = ind.StochK
	f[4] = ind.VolRatio()
	f[5] = flag(ind.EMA9 > ind.EMA21)
	f[6] = flag(ind.EMA21 > ind.EMA50)
	f[7] = math.Abs(ind.Price-ind.VWAP) / (ind.Price + 1e-9)
	f[8] = in.Imbalance
	f[9] = in.Funding * 1000
	f[10] = in.Outperform
	f[11] = in.Score
	f[12] = flag(in.Direction == model.Long)
	f[13] = float64(max(in.Class.Index(), 0))
	f[14] = flag(ind.RSIDivergence == model.DivergenceBullish || ind.RSIDivergence == model.DivergenceBearish)
	f[15] = float64(len(ind.Patterns))
	return f
}

// SignalFeatures builds the vector of an emitted signal.
func SignalFeatures(sig *model.Signal, ind *model.IndicatorSet) []float64 {
	return Features(FeatureInput{
		Ind:        ind,
		Funding:    sig.FundingRate,
		Imbalance:  sig.Imbalance,
		Outperform: sig.Outperform,
		Score:      sig.Score,
		Direction:  sig.Direction,
		Class:      sig.Class,
	})
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
