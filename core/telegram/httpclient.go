package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/quizbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 10 * time.Second
	defaultClientTimeout     = 20 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// getUpdates holds the response for up to longPoll, so both timeouts are
// stretched past it.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	longPoll = max(longPoll, 0)
	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}
	return &http.Client{
		Timeout: longPoll + defaultClientTimeout,
		Transport: &retryTransport{
			base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       defaultIdleConnTimeout,
				TLSHandshakeTimeout:   defaultTLSHandshake,
				ResponseHeaderTimeout: longPoll + defaultResponseTimeout,
				ExpectContinueTimeout: time.Second,
			},
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// retryTransport repeats requests that failed before reaching Telegram, such
// as refused dials. Requests whose body cannot be replayed are tried once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	for n := 1; err != nil && n <= t.maxRetries && netutil.ShouldRetry(err); n++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		if werr := pause(req.Context(), t.backoff*time.Duration(n)); werr != nil {
			return nil, werr
		}
		again, rerr := replay(req)
		if rerr != nil {
			return nil, rerr
		}
		resp, err = base.RoundTrip(again)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// replay clones req with a fresh body.
func replay(req *http.Request) (*http.Request, error) {
	again := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		again.Body = body
	}
	return again, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
