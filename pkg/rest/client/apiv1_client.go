// Package client provides a basic REST client for nanomail
package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/zeusnotfound04/nanomail/pkg/rest/model"
)

// Client accesses the nanomail REST API v1
type Client struct {
	restClient
}

// New creates a new v1 REST API client given the base URL of a nanomail server, ex:
// "http://localhost:9000"
func New(baseURL string, opts ...func(*ClientOptions)) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	options := getDefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	c := &Client{
		restClient{
			client: &http.Client{
				Transport: options.transport,
				Timeout:   options.timeout,
			},
			baseURL: parsedURL,
		},
	}
	return c, nil
}

func inboxURI(address string, elems ...string) string {
	uri := "/api/v1/inbox/" + url.PathEscape(address)
	for _, e := range elems {
		uri += "/" + url.PathEscape(e)
	}
	return uri
}

// Inbox returns the newest messages delivered to address, with content.  A bare local part is
// completed with the server's domain.
func (c *Client) Inbox(ctx context.Context, address string) (messages []*Message, err error) {
	err = c.doJSON(ctx, "GET", inboxURI(address), &messages)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		m.client = c
		m.address = address
	}
	return
}

// GetMessage returns the message details given an inbox address and message ID.
func (c *Client) GetMessage(ctx context.Context, address, id string) (message *Message, err error) {
	err = c.doJSON(ctx, "GET", inboxURI(address, id), &message)
	if err != nil {
		return nil, err
	}
	message.client = c
	message.address = address
	return
}

// GetMessageSource returns the message source given an inbox address and message ID.
func (c *Client) GetMessageSource(ctx context.Context, address, id string) (*bytes.Buffer, error) {
	uri := inboxURI(address, id, "source")
	resp, err := c.do(ctx, "GET", uri, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	if err := checkStatus("GET", uri, resp); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	return buf, err
}

// DeleteMessage deletes a single message given the inbox address and message ID.
func (c *Client) DeleteMessage(ctx context.Context, address, id string) error {
	return c.doJSON(ctx, "DELETE", inboxURI(address, id), nil)
}

// Message represents a nanomail message including content
type Message struct {
	*model.JSONMessageV1
	client  *Client
	address string
}

// GetSource returns the source for this message
func (m *Message) GetSource(ctx context.Context) (*bytes.Buffer, error) {
	return m.client.GetMessageSource(ctx, m.address, m.ID)
}

// Delete deletes this message from the server
func (m *Message) Delete(ctx context.Context) error {
	return m.client.DeleteMessage(ctx, m.address, m.ID)
}
