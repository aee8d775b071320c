// internal/common/http/client.go
package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	apperrors "catalog-search/internal/common/errors"
)

// maxBodyBytes bounds how much of an upstream body is read into memory.
const maxBodyBytes = 16 << 20

// Headers are the browser-like headers attached to every outbound request.
type Headers struct {
	UserAgent string
	Referer   string
	Origin    string
}

// Session owns the single shared connection pool used for every upstream
// call. The pool is built on first use and released by Close; a call made
// after Close lazily acquires a fresh pool.
type Session struct {
	headers Headers
	maxBody int64

	mu        sync.Mutex
	client    *http.Client
	transport *http.Transport
	newClient func() (*http.Client, *http.Transport)
}

// NewSession creates a session; no connections are opened until the first request.
func NewSession(headers Headers) *Session {
	return &Session{
		headers:   headers,
		maxBody:   maxBodyBytes,
		newClient: defaultClient,
	}
}

// NewSessionWithClient wraps a caller-supplied client. Close still releases its idle connections.
func NewSessionWithClient(headers Headers, client *http.Client) *Session {
	return &Session{
		headers: headers,
		maxBody: maxBodyBytes,
		newClient: func() (*http.Client, *http.Transport) {
			tr, _ := client.Transport.(*http.Transport)
			return client, tr
		},
	}
}

func defaultClient() (*http.Client, *http.Transport) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: tr}, tr
}

func (s *Session) acquire() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.client, s.transport = s.newClient()
	}
	return s.client
}

// Open reports whether the connection pool is currently held.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Close releases the pool. Safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	} else {
		s.client.CloseIdleConnections()
	}
	s.client = nil
	s.transport = nil
	return nil
}

func (s *Session) newRequest(ctx context.Context, method, rawURL string, params url.Values) (*http.Request, error) {
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
		}
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.headers.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	if s.headers.Referer != "" {
		req.Header.Set("Referer", s.headers.Referer)
	}
	if s.headers.Origin != "" {
		req.Header.Set("Origin", s.headers.Origin)
	}
	return req, nil
}

// Get performs a GET with a per-call timeout and returns the raw body.
// Transport failures and bad statuses come back as *errors.StandardError.
func (s *Session) Get(ctx context.Context, operation, rawURL string, params url.Values, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := s.newRequest(ctx, http.MethodGet, rawURL, params)
	if err != nil {
		return nil, err
	}

	resp, err := s.acquire().Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, apperrors.FromTransportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewUpstreamStatusError(operation, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, apperrors.FromTransportError(operation, err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, apperrors.NewUpstreamBodyTooLargeError(operation, s.maxBody)
	}
	return body, nil
}

// Exists issues a HEAD and reports whether the resource answered 200.
// Every failure, including timeouts, is reported as "does not exist".
func (s *Session) Exists(ctx context.Context, rawURL string, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := s.newRequest(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.acquire().Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Download fetches a binary resource such as a product photo.
func (s *Session) Download(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	return s.Get(ctx, "image", rawURL, nil, timeout)
}
