// Package indicator evaluates the EMA-crossover entry trigger on candle history.
package indicator

import (
	"token-radar/internal/domain"
)

// Config controls the evaluation. Passed per call; the evaluator keeps
// no state between calls.
type Config struct {
	FastPeriod int // fast EMA period
	SlowPeriod int // slow EMA period

	RSIPeriod    int     // Wilder RSI period
	RSIThreshold float64 // require rsi > threshold

	RequireVolumeSpike bool    // enable the volume condition
	VolumeWindow       int     // trailing candles averaged, excluding current
	VolumeMultiplier   float64 // require volume > multiplier * average
}

// DefaultConfig returns the standard trigger configuration.
func DefaultConfig() Config {
	return Config{
		FastPeriod:         9,
		SlowPeriod:         20,
		RSIPeriod:          14,
		RSIThreshold:       50,
		RequireVolumeSpike: false,
		VolumeWindow:       10,
		VolumeMultiplier:   1.5,
	}
}

// minVolumeSamples is the minimum trailing window needed to compute the
// average volume. With fewer samples the volume condition fails closed.
const minVolumeSamples = 5

// Evaluate inspects a candle history (oldest to newest) and returns a
// Signal when the fast EMA crosses strictly above the slow EMA on the
// latest candle with confirming RSI (and optionally volume). Returns nil
// when history is too short or any condition fails; absence of a signal
// is a normal outcome, not an error.
func Evaluate(history []domain.Candle, cfg Config) *domain.Signal {
	if len(history) < cfg.SlowPeriod+1 {
		return nil
	}

	closes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Close
	}

	prevFast, curFast, ok := emaLastTwo(closes, cfg.FastPeriod)
	if !ok {
		return nil
	}
	prevSlow, curSlow, ok := emaLastTwo(closes, cfg.SlowPeriod)
	if !ok {
		return nil
	}

	// Strict cross from at-or-below to above.
	if !(prevFast <= prevSlow && curFast > curSlow) {
		return nil
	}

	rsi, ok := wilderRSI(closes, cfg.RSIPeriod)
	if !ok || rsi <= cfg.RSIThreshold {
		return nil
	}

	last := history[len(history)-1]
	var avgVolume float64
	if cfg.RequireVolumeSpike {
		var ok bool
		avgVolume, ok = trailingAvgVolume(history, cfg.VolumeWindow)
		if !ok || last.Volume <= cfg.VolumeMultiplier*avgVolume {
			return nil
		}
	}

	return &domain.Signal{
		TokenAddress: last.TokenAddress,
		TimestampMs:  last.TimestampMs,
		Price:        last.Close,
		FastEMA:      curFast,
		SlowEMA:      curSlow,
		RSI:          rsi,
		Volume:       last.Volume,
		AvgVolume:    avgVolume,
	}
}

// emaLastTwo returns the previous and current EMA of closes.
// Seeded with the simple average of the first period closes, then
// smoothed forward with alpha = 2/(period+1).
func emaLastTwo(closes []float64, period int) (prev, cur float64, ok bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, 0, false
	}

	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	cur = sum / float64(period)
	prev = cur

	alpha := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		prev = cur
		cur = alpha*c + (1-alpha)*cur
	}
	return prev, cur, true
}

// wilderRSI computes the Relative Strength Index over closing-price
// deltas using Wilder smoothing of average gains and losses.
func wilderRSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// trailingAvgVolume averages volume over up to window candles preceding
// the current one. Requires at least minVolumeSamples candles.
func trailingAvgVolume(history []domain.Candle, window int) (float64, bool) {
	trailing := history[:len(history)-1]
	if window > 0 && len(trailing) > window {
		trailing = trailing[len(trailing)-window:]
	}
	if len(trailing) < minVolumeSamples {
		return 0, false
	}

	var sum float64
	for _, c := range trailing {
		sum += c.Volume
	}
	return sum / float64(len(trailing)), true
}
