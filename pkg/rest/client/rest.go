package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrNotFound is returned when the server has no such inbox message.
var ErrNotFound = errors.New("not found")

// httpClient allows http.Client to be mocked for tests
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generic REST restClient
type restClient struct {
	client  httpClient
	baseURL *url.URL
}

// do performs an HTTP request with this client and returns the response.
func (c *restClient) do(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	url := c.baseURL.JoinPath(uri)
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url.String(), r)
	if err != nil {
		return nil, fmt.Errorf("%s for %q: %w", method, url, err)
	}

	return c.client.Do(req)
}

// doJSON performs an HTTP request with this client and marshalls the JSON response into v.
func (c *restClient) doJSON(ctx context.Context, method string, uri string, v any) error {
	resp, err := c.do(ctx, method, uri, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	if err := checkStatus(method, uri, resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	// Decode response body
	return json.NewDecoder(resp.Body).Decode(v)
}

// checkStatus converts a non-200 response into an error, 404 wraps ErrNotFound.
func checkStatus(method, uri string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s for %q: %w", method, uri, ErrNotFound)
	}
	return fmt.Errorf("%s for %q, unexpected %v: %s", method, uri, resp.StatusCode, resp.Status)
}
