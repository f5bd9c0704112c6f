package domain

// Candle is a fixed-width OHLCV aggregate of price samples.
// Corresponds to the candles table. Immutable once written;
// natural key is (token_address, timestamp_ms).
type Candle struct {
	TokenAddress string  // token mint address
	Pool         *string // pool address (nullable)
	TimestampMs  int64   // period start, Unix timestamp in milliseconds
	Open         float64 // first sample price in period
	High         float64 // max sample price in period
	Low          float64 // min sample price in period
	Close        float64 // last sample price in period
	Volume       float64 // sum of sample volumes in period
}

// OHLCVPoint is one bar from an upstream historical fetch, oldest-first.
type OHLCVPoint struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// PriceSample is one live observation delivered by a sampler.
type PriceSample struct {
	TokenAddress string
	Price        float64
	Volume       float64
}
