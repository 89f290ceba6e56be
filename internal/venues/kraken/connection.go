package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/mdingest/internal/core"
)

const (
	pingInterval     = 30 * time.Second
	readIdleDeadline = 60 * time.Second
	minStableRun     = 30 * time.Second
)

// subscriptionRequest is Kraken's {"event":"subscribe",...} wire shape.
type subscriptionRequest struct {
	Event        string                 `json:"event"`
	Pair         []string               `json:"pair"`
	Subscription map[string]interface{} `json:"subscription"`
}

// runWithReconnect keeps one connection open for the lifetime of ctx,
// resubscribing every pair to both the trade and book channels on every
// (re)connect, since Kraken assigns a fresh channel ID per connection and
// the adapter has no cross-connection subscription state to resume.
// Backoff/jitter policy matches the Binance adapter's reconnect_loop for
// consistency across venues.
func (a *Adapter) runWithReconnect(ctx context.Context, pairs []string) {
	backoff := time.Second
	failures := 0
	for {
		if err := a.wsBucket.Acquire(ctx, 1); err != nil {
			return
		}

		start := time.Now()
		a.log.Info().Str("url", wsURL).Int("pairs", len(pairs)).Msg("opening websocket")

		connected, err := a.runConnection(ctx, pairs)
		elapsed := time.Since(start)
		ok := err == nil

		if !ok {
			a.log.Warn().Err(err).Msg("websocket closed with error")
			failures++
			if a.maxFailures > 0 && failures >= a.maxFailures {
				a.log.Error().Int("failures", failures).Msg("max websocket failures reached, giving up")
				return
			}
		} else {
			failures = 0
		}

		backoff = core.NextBackoff(backoff, elapsed, connected, a.maxBackoff, minStableRun)
		if a.metrics != nil {
			a.metrics.ObserveReconnect(VariantName)
		}

		jitter := 0.8 + rand.Float64()*0.4
		sleepFor := time.Duration(float64(backoff) * jitter)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

// runConnection reports whether the handshake succeeded, whatever error
// later ended the connection.
func (a *Adapter) runConnection(ctx context.Context, pairs []string) (bool, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  a.tlsConfig,
	}
	if a.dialContext != nil {
		dialer.NetDialContext = a.dialContext
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("websocket handshake: %w", err)
	}
	defer conn.Close()

	a.subMu.Lock()
	a.channelPairs = make(map[int]string)
	a.channelKind = make(map[int]string)
	a.subMu.Unlock()

	if err := a.subscribeAll(conn, pairs); err != nil {
		return true, fmt.Errorf("subscribing: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleDeadline))
	})
	_ = conn.SetReadDeadline(time.Now().Add(readIdleDeadline))

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	msgs := make(chan []byte, 1)
	readErrs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			msgs <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				if a.metrics != nil {
					a.metrics.ObserveHeartbeatFailure(VariantName)
				}
				return true, fmt.Errorf("sending ping: %w", err)
			}
		case err := <-readErrs:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if a.metrics != nil {
					a.metrics.ObserveHeartbeatFailure(VariantName)
				}
			}
			return true, err
		case data := <-msgs:
			a.handleMessage(data)
		}
	}
}

func (a *Adapter) subscribeAll(conn *websocket.Conn, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	requests := []subscriptionRequest{
		{Event: "subscribe", Pair: pairs, Subscription: map[string]interface{}{"name": "trade"}},
		{Event: "subscribe", Pair: pairs, Subscription: map[string]interface{}{"name": "book", "depth": 10}},
	}
	for _, req := range requests {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}
