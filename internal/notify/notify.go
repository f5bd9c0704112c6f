// Package notify delivers entry signals to a sink.
package notify

import (
	"context"
	"log"

	"token-radar/internal/domain"
)

// Notifier accepts a signal, fire-and-forget. Delivery failures are
// logged by the caller and never retried.
type Notifier interface {
	Notify(ctx context.Context, sig domain.Signal) error
}

// LogNotifier writes signals to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// Notify logs the signal.
func (n *LogNotifier) Notify(_ context.Context, sig domain.Signal) error {
	n.logger.Printf("SIGNAL %s (%s) price=%.8f fast=%.8f slow=%.8f rsi=%.1f vol=%.2f avgVol=%.2f",
		sig.Symbol, sig.TokenAddress, sig.Price, sig.FastEMA, sig.SlowEMA, sig.RSI, sig.Volume, sig.AvgVolume)
	return nil
}
