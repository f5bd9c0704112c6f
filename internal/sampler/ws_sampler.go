// Package sampler delivers live price observations into the aggregator.
package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
)

// Handler consumes one live price sample.
type Handler func(domain.PriceSample)

// WSConfig configures WebSocket sampler behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSampler streams trades from a WebSocket endpoint and forwards them
// as price samples. It reconnects with capped backoff and resubscribes
// to the current token set after every reconnect.
type WSSampler struct {
	endpoint  string
	config    WSConfig
	handler   Handler
	addresses func() []string // current subscription set

	conn   *websocket.Conn
	connMu sync.Mutex
	logger *log.Logger
}

// WSSamplerOptions contains configuration for creating a WSSampler.
type WSSamplerOptions struct {
	Endpoint  string
	Config    *WSConfig
	Handler   Handler
	Addresses func() []string // snapshot of addresses to subscribe
	Logger    *log.Logger
}

// NewWSSampler creates a new WebSocket sampler.
func NewWSSampler(opts WSSamplerOptions) *WSSampler {
	cfg := DefaultWSConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &WSSampler{
		endpoint:  opts.Endpoint,
		config:    cfg,
		handler:   opts.Handler,
		addresses: opts.Addresses,
		logger:    logger,
	}
}

// tradeMessage mirrors the upstream trade stream payload.
type tradeMessage struct {
	Mint   string  `json:"mint"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// subscribeRequest is the stream subscription frame.
type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// Run streams trades until ctx is cancelled, reconnecting on errors.
func (s *WSSampler) Run(ctx context.Context) error {
	delay := s.config.ReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.connect(ctx); err != nil {
			observability.RecordSampleError("websocket")
			s.logger.Printf("sampler connect: %v, retrying in %v", err, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.config.MaxReconnectDelay {
				delay = s.config.MaxReconnectDelay
			}
			continue
		}
		delay = s.config.ReconnectDelay

		err := s.readLoop(ctx)
		s.closeConn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("sampler stream ended: %v, reconnecting", err)
	}
}

// connect dials the endpoint and subscribes to the current token set.
func (s *WSSampler) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	var keys []string
	if s.addresses != nil {
		keys = s.addresses()
	}
	req := subscribeRequest{Method: "subscribeTokenTrade", Keys: keys}
	if err := s.writeJSON(req); err != nil {
		s.closeConn()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Printf("sampler connected, %d subscriptions", len(keys))
	return nil
}

// SubscribeToken adds one token to the live subscription. Safe to call
// while disconnected; the address set is replayed on reconnect.
func (s *WSSampler) SubscribeToken(address string) {
	err := s.writeJSON(subscribeRequest{Method: "subscribeTokenTrade", Keys: []string{address}})
	if err != nil {
		s.logger.Printf("subscribe %s: %v", address, err)
	}
}

// readLoop pumps messages until the connection breaks. The done channel
// bounds the ping goroutine to this connection's lifetime.
func (s *WSSampler) readLoop(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go s.pingLoop(ctx, done)

	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection closed")
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg tradeMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Mint == "" {
			continue // non-trade frame
		}
		if s.handler != nil {
			s.handler(domain.PriceSample{
				TokenAddress: msg.Mint,
				Price:        msg.Price,
				Volume:       msg.Volume,
			})
		}
	}
}

// pingLoop sends ping frames until the connection's readLoop returns.
func (s *WSSampler) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// writeJSON sends one frame under the connection lock.
func (s *WSSampler) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// closeConn tears down the current connection.
func (s *WSSampler) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
