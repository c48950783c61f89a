// Package http holds the shared outbound HTTP client.
package http

import (
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return NewClientWithTransport(timeout, nil)
}

// NewClientWithTransport wraps rt, or http.DefaultTransport when rt is nil.
func NewClientWithTransport(timeout time.Duration, rt http.RoundTripper) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
