package sampler

import (
	"context"
	"log"

	"token-radar/internal/domain"
	"token-radar/internal/marketdata"
	"token-radar/internal/observability"
)

// DefaultPollBatch is the upstream's per-request address limit.
const DefaultPollBatch = 30

// PollSampler reads current prices for the tracked token set over the
// REST API. It backs up the WebSocket stream when no stream endpoint
// is configured; polled samples carry no volume.
type PollSampler struct {
	source    marketdata.PriceSource
	addresses func() []string
	handler   Handler
	batchSize int
	logger    *log.Logger
}

// PollSamplerOptions contains configuration for creating a PollSampler.
type PollSamplerOptions struct {
	Source    marketdata.PriceSource
	Addresses func() []string // snapshot of addresses to poll
	Handler   Handler
	BatchSize int // default DefaultPollBatch
	Logger    *log.Logger
}

// NewPollSampler creates a new polling sampler.
func NewPollSampler(opts PollSamplerOptions) *PollSampler {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultPollBatch
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &PollSampler{
		source:    opts.Source,
		addresses: opts.Addresses,
		handler:   opts.Handler,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Poll fetches one round of prices for all tracked tokens.
func (s *PollSampler) Poll(ctx context.Context) error {
	if s.addresses == nil || s.handler == nil {
		return nil
	}

	addrs := s.addresses()
	for start := 0; start < len(addrs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(addrs) {
			end = len(addrs)
		}

		prices, err := s.source.TokenPrices(ctx, addrs[start:end])
		if err != nil {
			observability.RecordSampleError("poll")
			return err
		}
		for addr, price := range prices {
			s.handler(domain.PriceSample{TokenAddress: addr, Price: price})
		}
	}
	return nil
}
