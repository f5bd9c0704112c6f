package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"token-radar/internal/domain"
	"token-radar/internal/marketdata/stub"
)

// testAddress builds a distinct valid 32-byte base58 address.
func testAddress(seed byte) string {
	var buf [32]byte
	buf[0] = seed
	buf[31] = seed
	return base58.Encode(buf[:])
}

// recordingEnqueuer captures enqueued infos.
type recordingEnqueuer struct {
	infos []domain.TokenInfo
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, info domain.TokenInfo, _ *string) error {
	if r.err != nil {
		return r.err
	}
	r.infos = append(r.infos, info)
	return nil
}

func TestPoller_EnqueuesFreshCandidates(t *testing.T) {
	nowMs := int64(1704067200000)
	addr1, addr2 := testAddress(1), testAddress(2)

	source := stub.NewDiscoverySource([]domain.TokenInfo{
		{Address: addr1, Symbol: "A", CreatedAt: nowMs - 1000},
		{Address: addr2, Symbol: "B", CreatedAt: nowMs - 2000},
		{Address: "not-base58!", Symbol: "BAD"},
	})
	sink := &recordingEnqueuer{}

	poller := NewPoller(PollerOptions{
		Source:   source,
		Enqueuer: sink,
		Now:      func() time.Time { return time.UnixMilli(nowMs) },
	})

	n, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 enqueued, got %d", n)
	}
	if len(sink.infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(sink.infos))
	}
	if sink.infos[0].Address != addr1 || sink.infos[1].Address != addr2 {
		t.Error("valid addresses should be enqueued in batch order")
	}
}

func TestPoller_DedupAcrossPolls(t *testing.T) {
	addr := testAddress(3)
	source := stub.NewDiscoverySource([]domain.TokenInfo{{Address: addr}})
	sink := &recordingEnqueuer{}

	poller := NewPoller(PollerOptions{Source: source, Enqueuer: sink})

	for i := 0; i < 3; i++ {
		if _, err := poller.Poll(context.Background()); err != nil {
			t.Fatalf("Poll %d failed: %v", i, err)
		}
	}

	if len(sink.infos) != 1 {
		t.Errorf("repeated candidate should be enqueued once, got %d", len(sink.infos))
	}
}

func TestPoller_MaxAgeCutoff(t *testing.T) {
	nowMs := int64(1704067200000)
	fresh, stale, unknown := testAddress(4), testAddress(5), testAddress(6)

	source := stub.NewDiscoverySource([]domain.TokenInfo{
		{Address: fresh, CreatedAt: nowMs - 60_000},
		{Address: stale, CreatedAt: nowMs - 25*60*60*1000},
		{Address: unknown, CreatedAt: 0}, // unknown age passes
	})
	sink := &recordingEnqueuer{}

	poller := NewPoller(PollerOptions{
		Source:   source,
		Enqueuer: sink,
		MaxAge:   24 * time.Hour,
		Now:      func() time.Time { return time.UnixMilli(nowMs) },
	})

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if len(sink.infos) != 2 {
		t.Fatalf("expected fresh and unknown-age candidates, got %d", len(sink.infos))
	}
	for _, info := range sink.infos {
		if info.Address == stale {
			t.Error("stale candidate should be cut off")
		}
	}
}

func TestPoller_SourceErrorPropagates(t *testing.T) {
	source := stub.NewDiscoverySource()
	source.SetError(errors.New("upstream down"))

	poller := NewPoller(PollerOptions{Source: source, Enqueuer: &recordingEnqueuer{}})

	if _, err := poller.Poll(context.Background()); err == nil {
		t.Error("source failure should surface to the scheduler for logging")
	}
}

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		address string
		want    bool
	}{
		{"So11111111111111111111111111111111111111112", true},
		{testAddress(7), true},
		{"not-base58!", false},
		{"", false},
		{"abc", false}, // decodes short
	}
	for _, tc := range cases {
		if got := ValidateAddress(tc.address); got != tc.want {
			t.Errorf("ValidateAddress(%q) = %v, want %v", tc.address, got, tc.want)
		}
	}
}
