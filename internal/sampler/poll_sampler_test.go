package sampler

import (
	"context"
	"errors"
	"testing"

	"token-radar/internal/domain"
)

// stubPriceSource serves fixed prices and records batch sizes.
type stubPriceSource struct {
	prices  map[string]float64
	batches [][]string
	err     error
}

func (s *stubPriceSource) TokenPrices(_ context.Context, addresses []string) (map[string]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	batch := make([]string, len(addresses))
	copy(batch, addresses)
	s.batches = append(s.batches, batch)

	result := make(map[string]float64)
	for _, a := range addresses {
		if p, ok := s.prices[a]; ok {
			result[a] = p
		}
	}
	return result, nil
}

func TestPollSampler_EmitsSamples(t *testing.T) {
	source := &stubPriceSource{prices: map[string]float64{"mint1": 1.5, "mint2": 2.5}}

	var samples []domain.PriceSample
	s := NewPollSampler(PollSamplerOptions{
		Source:    source,
		Addresses: func() []string { return []string{"mint1", "mint2", "unknown"} },
		Handler:   func(p domain.PriceSample) { samples = append(samples, p) },
	})

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(samples))
	}
}

func TestPollSampler_BatchesRequests(t *testing.T) {
	source := &stubPriceSource{prices: map[string]float64{}}

	addrs := make([]string, 75)
	for i := range addrs {
		addrs[i] = string(rune('a' + i%26))
	}

	s := NewPollSampler(PollSamplerOptions{
		Source:    source,
		Addresses: func() []string { return addrs },
		Handler:   func(domain.PriceSample) {},
		BatchSize: 30,
	})

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(source.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(source.batches))
	}
	if len(source.batches[0]) != 30 || len(source.batches[2]) != 15 {
		t.Errorf("unexpected batch sizes: %d, %d", len(source.batches[0]), len(source.batches[2]))
	}
}

func TestPollSampler_ErrorPropagates(t *testing.T) {
	source := &stubPriceSource{err: errors.New("rate limited")}

	s := NewPollSampler(PollSamplerOptions{
		Source:    source,
		Addresses: func() []string { return []string{"mint1"} },
		Handler:   func(domain.PriceSample) {},
	})

	if err := s.Poll(context.Background()); err == nil {
		t.Error("source error should surface to the scheduler")
	}
}
