// Package fetch downloads bulk data files over HTTP as a stream. The
// dumps run to tens of gigabytes, so the returned stream transparently
// reconnects on mid-body failures, resuming with a Range request when the
// server supports it and restarting from zero when it does not.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"caselake/internal/logging"
)

// Client issues streaming downloads.
type Client struct {
	hc         *http.Client
	userAgent  string
	maxRetries int
}

// NewClient builds a Client. headerTimeout bounds connection setup and
// response headers; the body itself is only bounded by ctx.
func NewClient(headerTimeout time.Duration, maxRetries int, userAgent string) *Client {
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		hc: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   headerTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: headerTimeout,
				TLSHandshakeTimeout:   headerTimeout,
			},
		},
		userAgent:  userAgent,
		maxRetries: maxRetries,
	}
}

// Stream is a resuming download body.
type Stream struct {
	// ContentLength is the total size reported by the server, or -1.
	ContentLength int64

	ctx       context.Context
	client    *Client
	url       string
	body      io.ReadCloser
	offset    int64
	canResume bool
	closed    bool
}

// Open starts the download. The returned Stream must be closed.
func (c *Client) Open(ctx context.Context, url string) (*Stream, error) {
	logging.Fetch("GET %s", url)

	resp, err := c.get(ctx, url, 0)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		ContentLength: resp.ContentLength,
		ctx:           ctx,
		client:        c,
		url:           url,
		body:          resp.Body,
		canResume:     resp.Header.Get("Accept-Ranges") == "bytes",
	}
	logging.FetchDebug("content-length=%d accept-ranges=%v", s.ContentLength, s.canResume)
	return s, nil
}

// get issues one GET, retrying connection-level and 5xx failures with
// exponential backoff. from > 0 adds a Range header.
func (c *Client) get(ctx context.Context, url string, from int64) (*http.Response, error) {
	var resp *http.Response

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if from > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
		}

		r, err := c.hc.Do(req)
		if err != nil {
			logging.FetchDebug("request failed, will retry: %v", err)
			return err
		}
		switch {
		case from > 0 && r.StatusCode == http.StatusPartialContent:
		case from == 0 && r.StatusCode == http.StatusOK:
		case r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests:
			r.Body.Close()
			logging.FetchDebug("status %d, will retry", r.StatusCode)
			return fmt.Errorf("fetch: server returned %s", r.Status)
		default:
			r.Body.Close()
			return backoff.Permanent(fmt.Errorf("fetch: unexpected status %s for %s", r.Status, url))
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

// Read implements io.Reader, reconnecting on mid-body failures and on
// short bodies when the total length is known.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		n, err := s.body.Read(p)
		s.offset += int64(n)

		if err == nil {
			return n, nil
		}
		if err == io.EOF {
			if s.ContentLength < 0 || s.offset >= s.ContentLength {
				return n, io.EOF
			}
			logging.Get(logging.CategoryFetch).Warn("body ended at %d of %d bytes, reconnecting", s.offset, s.ContentLength)
		} else {
			if s.ctx.Err() != nil {
				return n, s.ctx.Err()
			}
			logging.Get(logging.CategoryFetch).Warn("read failed at offset %d, reconnecting: %v", s.offset, err)
		}

		if rerr := s.reconnect(); rerr != nil {
			return n, fmt.Errorf("fetch: resume at offset %d: %w", s.offset, rerr)
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (s *Stream) reconnect() error {
	s.body.Close()

	if s.canResume {
		resp, err := s.client.get(s.ctx, s.url, s.offset)
		if err != nil {
			return err
		}
		s.body = resp.Body
		logging.Fetch("resumed %s at offset %d", s.url, s.offset)
		return nil
	}

	// No Range support: restart and discard what we already consumed.
	logging.Get(logging.CategoryFetch).Warn("server does not support ranges, restarting %s from zero", s.url)
	resp, err := s.client.get(s.ctx, s.url, 0)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, resp.Body, s.offset); err != nil {
		resp.Body.Close()
		return fmt.Errorf("fetch: replaying %d bytes: %w", s.offset, err)
	}
	s.body = resp.Body
	return nil
}

// Offset returns the number of body bytes consumed so far.
func (s *Stream) Offset() int64 { return s.offset }

// Close closes the underlying body.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
