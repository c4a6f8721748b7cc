// Package api implements the HTTP transport to the chat backend: plain
// request/response calls and the chunked streaming endpoint, with bearer
// injection and a 401 callback for the authentication collaborator.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Error is a failed backend call: the HTTP status plus the decoded error body.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// IsAuth reports whether the call was rejected as unauthenticated.
func (e *Error) IsAuth() bool { return e.Status == http.StatusUnauthorized }

// Client issues calls against the chat backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	token       func() string
	onAuthError func()
}

// NewClient instantiates a client. The timeout bounds plain request/response
// calls only; the streaming endpoint outlives any sane one and is bounded by
// its context instead. token is read on every call so a re-login takes effect
// without rebuilding the client; onAuthError is invoked on any 401 response
// and may be nil.
func NewClient(baseURL string, timeout time.Duration, token func() string, onAuthError func()) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		timeout:     timeout,
		token:       token,
		onAuthError: onAuthError,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any, params url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling payload")
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	request.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if token := c.token(); token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return request, nil
}

// do issues a request and decodes the JSON response into out (skipped when nil).
func (c *Client) do(ctx context.Context, method, path string, payload any, params url.Values, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	request, err := c.newRequest(ctx, method, path, payload, params)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return errors.Wrap(err, "issuing request")
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return c.decodeError(response)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

// stream issues a request and hands back the raw body for incremental reads.
// The caller owns the body and must close it; cancelling the context tears
// the read down promptly.
func (c *Client) stream(ctx context.Context, method, path string, params url.Values) (io.ReadCloser, error) {
	request, err := c.newRequest(ctx, method, path, nil, params)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "issuing stream request")
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return nil, c.decodeError(response)
	}
	return response.Body, nil
}

func (c *Client) decodeError(response *http.Response) error {
	apiError := &Error{Status: response.StatusCode}
	if err := json.NewDecoder(response.Body).Decode(apiError); err != nil {
		apiError.Message = response.Status
	}
	if apiError.IsAuth() && c.onAuthError != nil {
		c.onAuthError()
	}
	return apiError
}
