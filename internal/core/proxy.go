package core

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// DialContextFunc matches both http.Transport.DialContext and
// websocket.Dialer.NetDialContext, letting one SOCKS5 dialer serve both
// the REST client and the WebSocket dialer.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SOCKS5DialContext returns a dialer that tunnels every connection through
// the SOCKS5 proxy at proxyAddr before handing the raw TCP conn back to the
// caller, which then negotiates TLS over it itself. Grounded on
// agents/src/adapter/binance.rs::connect_via_socks5 ("SOCKS5 first, then
// TLS wraps it"): this function only ever returns a plain TCP conn, never
// performs a TLS handshake itself. Returns nil if proxyAddr is empty,
// meaning "dial directly" — callers should leave DialContext/NetDialContext
// unset in that case rather than call through a no-op wrapper.
func SOCKS5DialContext(proxyAddr string) (DialContextFunc, error) {
	if proxyAddr == "" {
		return nil, nil
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("building socks5 dialer for %q: %w", proxyAddr, err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		// golang.org/x/net/proxy's SOCKS5 dialer has implemented
		// ContextDialer since the package's context-aware rewrite; this
		// branch only guards against a future non-context-aware Dialer
		// value from proxy.Direct being substituted in.
		return func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}, nil
	}

	return contextDialer.DialContext, nil
}
