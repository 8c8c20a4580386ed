package mem

import (
	"bytes"
	"container/list"
	"io"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// Message is a memory store message.
type Message struct {
	index      int
	id         string
	sender     string
	recipients []string
	subject    string
	date       time.Time
	source     []byte
	el         *list.Element // This message in the size enforcer list.
}

var _ storage.Message = &Message{}

// ID the message ID.
func (m *Message) ID() string { return m.id }

// Sender returns the envelope sender.
func (m *Message) Sender() string { return m.sender }

// Recipients returns the normalized recipient addresses.
func (m *Message) Recipients() []string { return m.recipients }

// Subject returns the subject recorded at delivery.
func (m *Message) Subject() string { return m.subject }

// Date returns the date received.
func (m *Message) Date() time.Time { return m.date }

// Source returns a reader for the message source.
func (m *Message) Source() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.source)), nil
}

// Size returns the message size in bytes.
func (m *Message) Size() int64 { return int64(len(m.source)) }
