package discovery

import (
	"context"
	"log"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/marketdata"
	"token-radar/internal/observability"
)

// Enqueuer accepts deduplicated discovery candidates.
type Enqueuer interface {
	Enqueue(ctx context.Context, info domain.TokenInfo, pool *string) error
}

// Poller pulls discovery batches, validates and deduplicates them, and
// enqueues fresh candidates for backfill.
type Poller struct {
	source   marketdata.DiscoverySource
	gate     *Gate
	enqueuer Enqueuer

	maxAge      time.Duration
	programOnly bool
	logger      *log.Logger
	now         func() time.Time
}

// PollerOptions contains configuration for creating a Poller.
type PollerOptions struct {
	Source   marketdata.DiscoverySource
	Gate     *Gate
	Enqueuer Enqueuer

	// MaxAge is the single canonical freshness cutoff: candidates whose
	// creation time is known and older than this are skipped. Zero
	// disables the cutoff.
	MaxAge time.Duration

	// ProgramOnly skips on-curve (wallet-style) addresses, keeping only
	// program-derived mints.
	ProgramOnly bool

	Logger *log.Logger
	Now    func() time.Time // test hook
}

// NewPoller creates a new discovery poller.
func NewPoller(opts PollerOptions) *Poller {
	gate := opts.Gate
	if gate == nil {
		gate = NewGate(0)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Poller{
		source:      opts.Source,
		gate:        gate,
		enqueuer:    opts.Enqueuer,
		maxAge:      opts.MaxAge,
		programOnly: opts.ProgramOnly,
		logger:      logger,
		now:         now,
	}
}

// Poll fetches one discovery batch and enqueues fresh candidates.
// Returns the number of candidates enqueued.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	batch, err := p.source.Latest(ctx)
	if err != nil {
		return 0, err
	}

	var enqueued int
	for _, info := range batch {
		if !ValidateAddress(info.Address) {
			continue
		}
		if p.programOnly && IsOnCurve(info.Address) {
			continue
		}
		if p.maxAge > 0 && info.CreatedAt > 0 {
			age := p.now().UnixMilli() - info.CreatedAt
			if age > p.maxAge.Milliseconds() {
				continue
			}
		}
		if p.gate.Seen(info.Address) {
			continue
		}

		if err := p.enqueuer.Enqueue(ctx, info, nil); err != nil {
			p.logger.Printf("enqueue %s: %v", info.Address, err)
			continue
		}
		enqueued++
	}

	observability.RecordCandidates(len(batch), enqueued)
	if enqueued > 0 {
		p.logger.Printf("discovery: enqueued %d of %d candidates", enqueued, len(batch))
	}
	return enqueued, nil
}
