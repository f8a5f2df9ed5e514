// Package resource implements the host-to-body loadResource call
// (spec.md §6): reading a bundled file or fetching a URL, guarded by a
// circuit breaker so a b-thread body that keeps requesting a broken
// resource fails fast instead of hanging every cycle on I/O.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/http2"

	"github.com/nmxmxh/bp-runtime/utils"
)

// Loader resolves a resource path to bytes. "http://" and "https://"
// paths are fetched over the network (via an http2-capable transport);
// anything else is read from the local filesystem.
type Loader struct {
	breaker *gobreaker.CircuitBreaker
	client  *http.Client
}

// New builds a Loader. name identifies the breaker in logs/metrics;
// timeout bounds a single fetch.
func New(name string, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{}
	_ = http2.ConfigureTransport(transport) // best-effort h2 upgrade

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Loader{
		breaker: gobreaker.NewCircuitBreaker(settings),
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Load resolves path, tripping the breaker open after repeated
// failures so callers fail fast (mirrors errkind's "abort rather than
// hang" posture for cycle-internal I/O).
func (l *Loader) Load(path string) ([]byte, error) {
	result, err := l.breaker.Execute(func() (interface{}, error) {
		return l.fetch(path)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.TimeoutError(fmt.Sprintf("loading resource %q", path))
		}
		return nil, utils.WrapError(err, fmt.Sprintf("loading resource %q", path))
	}
	return result.([]byte), nil
}

func (l *Loader) fetch(path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), l.client.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(path)
}

// Close releases the loader's idle HTTP connections, letting a program
// shut down without leaking pooled sockets.
func (l *Loader) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
