package core

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// RateLimitedGet issues a GET through bucket's token gate, retrying 429s
// and 5xxs with a doubling backoff capped at maxBackoff rather than giving
// up immediately — most venues' rate-limit responses are transient and
// clear within a few seconds. If hostLimiter is non-nil, the request also
// waits on hostLimiter's per-host budget after acquiring bucket's token, so
// a host fronting several adapters is never hit harder than its own pace
// even if every adapter's own bucket would individually allow it. Grounded
// on agents/src/adapter/binance.rs::rate_limited_get.
func RateLimitedGet(ctx context.Context, client *resty.Client, bucket *TokenBucket, hostLimiter *HostLimiter, url string, maxBackoff time.Duration) (*resty.Response, error) {
	backoff := time.Second

	for {
		if err := bucket.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("rate limited get %s: %w", url, err)
		}
		if hostLimiter != nil {
			if err := hostLimiter.Wait(ctx, requestHost(url)); err != nil {
				return nil, fmt.Errorf("rate limited get %s: %w", url, err)
			}
		}

		resp, err := client.R().SetContext(ctx).Get(url)
		if err == nil && resp.StatusCode() == 429 {
			err = fmt.Errorf("http 429 from %s", url)
		} else if err == nil && resp.StatusCode() >= 500 {
			err = fmt.Errorf("http %d from %s", resp.StatusCode(), url)
		} else if err == nil && resp.IsError() {
			return resp, fmt.Errorf("http %d from %s", resp.StatusCode(), url)
		}

		if err == nil {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = saturatingDouble(backoff, maxBackoff)
	}
}

// requestHost extracts the host:port pacing key from a request URL,
// falling back to the raw URL itself if it doesn't parse — HostLimiter
// treats that as just another (degenerate) host bucket rather than a
// hard failure.
func requestHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
