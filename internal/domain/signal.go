package domain

// Signal is an entry trigger produced by the indicator evaluator.
// Ephemeral: delivered to the notification sink, never persisted.
type Signal struct {
	TokenAddress string
	Symbol       string
	TimestampMs  int64   // timestamp of the candle that produced the signal
	Price        float64 // latest close, reference price
	FastEMA      float64
	SlowEMA      float64
	RSI          float64
	Volume       float64 // volume of the triggering candle
	AvgVolume    float64 // trailing average volume, 0 when not computed
}
