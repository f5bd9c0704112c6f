package sampler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"token-radar/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestWSSampler_SubscribesAndForwardsTrades(t *testing.T) {
	var mu sync.Mutex
	var gotSubscribe subscribeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Read subscribe request
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		mu.Lock()
		if err := json.Unmarshal(msg, &gotSubscribe); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
		}
		mu.Unlock()

		// Send one trade and one non-trade frame
		_ = conn.WriteJSON(tradeMessage{Mint: "mint1", Price: 1.25, Volume: 42})
		_ = conn.WriteJSON(map[string]string{"message": "ack"})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	samples := make(chan domain.PriceSample, 10)
	s := NewWSSampler(WSSamplerOptions{
		Endpoint:  wsURL,
		Handler:   func(p domain.PriceSample) { samples <- p },
		Addresses: func() []string { return []string{"mint1", "mint2"} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	select {
	case got := <-samples:
		if got.TokenAddress != "mint1" || got.Price != 1.25 || got.Volume != 42 {
			t.Errorf("unexpected sample %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for trade sample")
	}

	mu.Lock()
	if gotSubscribe.Method != "subscribeTokenTrade" {
		t.Errorf("expected subscribeTokenTrade, got %s", gotSubscribe.Method)
	}
	if len(gotSubscribe.Keys) != 2 {
		t.Errorf("expected 2 subscription keys, got %d", len(gotSubscribe.Keys))
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not stop on cancel")
	}
}

func TestWSSampler_ReconnectChurnDoesNotLeakGoroutines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Accept the subscribe frame, then drop the connection so the
		// sampler reconnects immediately.
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = time.Millisecond
	cfg.MaxReconnectDelay = time.Millisecond

	s := NewWSSampler(WSSamplerOptions{
		Endpoint: wsURL,
		Config:   &cfg,
		Handler:  func(domain.PriceSample) {},
	})

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	// Let the sampler cycle through many connect/drop rounds.
	time.Sleep(500 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not stop on cancel")
	}

	// Give per-connection goroutines a moment to unwind.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	after := runtime.NumGoroutine()
	if after > before+5 {
		t.Errorf("goroutines grew from %d to %d across reconnect churn", before, after)
	}
}

func TestWSSampler_StopsOnCancelWhileUnreachable(t *testing.T) {
	s := NewWSSampler(WSSamplerOptions{
		Endpoint: "ws://127.0.0.1:1", // nothing listens here
		Handler:  func(domain.PriceSample) {},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run should return the context error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
}
