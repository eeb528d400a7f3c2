package calculator

import (
	"errors"
	"fmt"

	"SignalSentinel/internal/model"
)

// MinCandles is the shortest series Compute accepts.
const MinCandles = 50

// ErrInsufficientData is returned when fewer than MinCandles candles are supplied.
var ErrInsufficientData = errors.New("insufficient candle data")

// Compute derives the full indicator set from an ordered candle series.
func Compute(candles []model.Candle) (*model.IndicatorSet, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(candles), MinCandles)
	}
	closes := extractCloses(candles)
	volumes := extractVolumes(candles)
	price := closes[len(closes)-1]

	rsi14 := RSISeries(closes, 14)
	_, _, hist := MACDSeries(closes, 12, 26, 9)
	macd := CalculateMACD(closes, 12, 26, 9)
	stochK, stochD := CalculateStochRSI(rsi14, 14, 3, 3)

	ema200Span := 200
	if len(closes) < ema200Span {
		ema200Span = len(closes)
	}

	ind := &model.IndicatorSet{
		Price:        price,
		RSI14:        orDefault(last(rsi14), 50),
		RSI7:         orDefault(last(RSISeries(closes, 7)), 50),
		MACD:         orDefault(macd.Line, 0),
		MACDSignal:   orDefault(macd.Signal, 0),
		MACDHist:     orDefault(macd.Hist, 0),
		MACDHistPrev: orDefault(macd.HistPrev, 0),
		ATR14:        orDefault(last(ATRSeries(candles, 14)), price*0.01),
		StochK:       orDefault(stochK, 50),
		StochD:       orDefault(stochD, 50),
		VWAP:         orDefault(CalculateVWAP(candles), price),
		EMA9:         last(EMASeries(closes, 9)),
		EMA21:        last(EMASeries(closes, 21)),
		EMA50:        last(EMASeries(closes, 50)),
		EMA200:       last(EMASeries(closes, ema200Span)),
		VolCurrent:   volumes[len(volumes)-1],
		Patterns:     DetectPatterns(candles),
		Pivots:       CalculatePivots(candles),
		POC:          CalculatePOC(candles[len(candles)-50:], 50),
	}

	if upper, mid, lower, ok := CalculateBollinger(closes, 20, 2); ok {
		ind.BBUpper, ind.BBMid, ind.BBLower = upper, mid, lower
	} else {
		ind.BBUpper, ind.BBMid, ind.BBLower = price*1.02, price, price*0.98
	}

	ind.VolSMA20 = 1
	if v, err := CalculateSMA(volumes, 20); err == nil {
		ind.VolSMA20 = v
	}
	ind.VolSMA5 = 1
	if v, err := CalculateSMA(volumes, 5); err == nil {
		ind.VolSMA5 = v
	}

	obv := OBVSeries(candles)
	ind.OBV = obv[len(obv)-1]
	ind.OBVPrev = obv[len(obv)-2]

	ind.RSIDivergence = DetectDivergence(closes, rsi14, 5)
	ind.MACDDivergence = DetectDivergence(closes, hist, 5)
	return ind, nil
}
