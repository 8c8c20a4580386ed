package test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// ManagerStub is a test stub for message.Manager.  The inbox "inboxerr@nanomail.test" and the
// message ID "messageerr" produce internal errors.
type ManagerStub struct {
	message.Manager
	messages []*message.Message
	sources  map[string][]byte
	Domain   string
}

// NewManager creates a new ManagerStub.
func NewManager() *ManagerStub {
	return &ManagerStub{
		sources: make(map[string][]byte),
		Domain:  "nanomail.test",
	}
}

// AddMessage adds a message along with its raw source.
func (m *ManagerStub) AddMessage(msg *message.Message, source []byte) {
	m.messages = append(m.messages, msg)
	m.sources[msg.ID] = source
}

// AddressFor appends the stub domain to bare local parts.
func (m *ManagerStub) AddressFor(query string) string {
	address := storage.NormalizeAddress(query)
	if address != "" && !strings.Contains(address, "@") {
		address += "@" + m.Domain
	}
	return address
}

// Inbox returns messages for the address in the order they were added.
func (m *ManagerStub) Inbox(ctx context.Context, query string) ([]*message.Message, error) {
	address := m.AddressFor(query)
	if address == "inboxerr@"+m.Domain {
		return nil, errors.New("internal error")
	}
	result := []*message.Message{}
	for _, msg := range m.messages {
		if slices.Contains(msg.Recipients, address) {
			result = append(result, msg)
		}
	}
	return result, nil
}

// GetMessage gets a message by ID.
func (m *ManagerStub) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	if id == "messageerr" {
		return nil, errors.New("internal error")
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, storage.ErrNotExist
}

// Source returns the raw source added with the message.
func (m *ManagerStub) Source(id string) (io.ReadCloser, error) {
	if id == "messageerr" {
		return nil, errors.New("internal error")
	}
	source, ok := m.sources[id]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(source)), nil
}

// RemoveMessage deletes a message by ID.
func (m *ManagerStub) RemoveMessage(id string) error {
	if id == "messageerr" {
		return errors.New("internal error")
	}
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = slices.Delete(m.messages, i, i+1)
			delete(m.sources, id)
			return nil
		}
	}
	return storage.ErrNotExist
}
