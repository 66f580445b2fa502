// Package devices implements the Access-Device Client: a digest-authenticated
// HTTP control plane for vendor access panels and biometric readers.
package devices

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/icholy/digest"
)

// DefaultTimeout is the per-operation HTTP timeout used when a caller does
// not override it.
const DefaultTimeout = 3 * time.Second

// Client controls a single access-control device over its HTTP ISAPI-style
// control protocol.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the device at host:port, authenticating with
// digest auth using username/password.
func New(host string, port int, username, password string, timeout time.Duration) *Client {
	if port == 0 {
		port = 80
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &digest.Transport{Username: username, Password: password},
		},
	}
}

// cache is the process-wide host:port -> Client cache named in the spec's
// concurrency model. Clients are stateless so racy inserts are harmless: two
// goroutines may briefly construct distinct *Client values for the same key,
// and whichever write wins is used from then on.
var cache sync.Map // map[string]*Client

// Get returns the cached client for host:port, constructing one on first use.
func Get(host string, port int, username, password string, timeout time.Duration) *Client {
	key := fmt.Sprintf("%s:%d", host, port)
	if v, ok := cache.Load(key); ok {
		return v.(*Client)
	}
	c := New(host, port, username, password, timeout)
	actual, _ := cache.LoadOrStore(key, c)
	return actual.(*Client)
}

func (c *Client) doPUT(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, newReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.http.Do(req)
}

func (c *Client) doGET(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	return c.http.Do(req)
}

func (c *Client) doPOST(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, newReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.http.Do(req)
}
