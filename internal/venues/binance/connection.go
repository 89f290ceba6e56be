package binance

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/mdingest/internal/core"
)

const (
	pingInterval     = 30 * time.Second
	readIdleDeadline = 60 * time.Second
	minStableRun     = 30 * time.Second
)

// runChunk opens a combined-stream WebSocket connection for chunk and keeps
// it alive across drops with exponential backoff, exactly mirroring
// reconnect_loop: backoff resets to 1s only after a connection survives
// minStableRun, doubles (saturating, capped at a.maxBackoff) otherwise, and
// every attempt is jittered +/-20% so many chunks reconnecting at once don't
// all hit the venue in the same instant. A run of a.maxFailures consecutive
// non-ok attempts — handshake failures or stream errors alike, the same
// failures counter the original reconnect_loop keeps — gives the chunk up
// for good rather than retrying forever, matching its max_failures/GaveUp
// behavior.
func (a *Adapter) runChunk(ctx context.Context, chunk []string) {
	streamURL := a.variant.WSBase + strings.Join(chunk, "/")

	backoff := time.Second
	failures := 0
	for {
		if err := a.wsBucket.Acquire(ctx, 1); err != nil {
			return
		}

		start := time.Now()
		a.log.Info().Str("url", streamURL).Int("streams", len(chunk)).Msg("opening websocket")

		connected, err := a.runConnection(ctx, streamURL)
		elapsed := time.Since(start)
		ok := err == nil

		if !ok {
			a.log.Warn().Err(err).Msg("websocket closed with error")
			failures++
			if a.maxFailures > 0 && failures >= a.maxFailures {
				a.log.Error().Int("failures", failures).Str("streams", streamURL).
					Msg("max websocket failures reached, giving up on chunk")
				return
			}
		} else {
			failures = 0
		}

		backoff = core.NextBackoff(backoff, elapsed, connected, a.maxBackoff, minStableRun)
		if a.metrics != nil {
			a.metrics.ObserveReconnect(a.variant.Name)
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

// runConnection dials streamURL, then loops reading frames until the
// connection drops, the context is cancelled, or the heartbeat times out.
// Ping/pong and the 60s read-idle timeout mirror run_ws's tokio::select!
// between a ping ticker and a timed read. The bool reports whether the
// handshake succeeded, whatever error later ended the connection.
func (a *Adapter) runConnection(ctx context.Context, streamURL string) (bool, error) {
	u, err := url.Parse(streamURL)
	if err != nil {
		return false, fmt.Errorf("parsing websocket url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  a.tlsConfig,
	}
	if a.dialContext != nil {
		// SOCKS5 first, then TLS wraps it: NetDialContext only returns the
		// raw tunneled TCP conn, so the Dialer still negotiates TLS itself
		// via TLSClientConfig above for a wss:// URL.
		dialer.NetDialContext = a.dialContext
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("websocket handshake: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = conn.Close()
		close(done)
	}()

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
					a.metrics.ObserveHeartbeatFailure(a.variant.Name)
				}
				return true, fmt.Errorf("sending ping: %w", err)
			}
		case err := <-readErrs:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if a.metrics != nil {
					a.metrics.ObserveHeartbeatFailure(a.variant.Name)
				}
			}
			return true, err
		case data := <-msgs:
			a.handleMessage(data)
		}
	}
}
