// Package message contains message handling logic.
package message

import (
	"bytes"
	"io"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/extract"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// Metadata holds information about a message, but not the content.
type Metadata struct {
	ID         string
	Sender     string
	Recipients []string
	Subject    string
	Date       time.Time
	Size       int64
}

// Message holds both the metadata and extracted content of a message.
type Message struct {
	Metadata
	Email *extract.Email
}

// Delivery is used to add a message to storage.
type Delivery struct {
	Meta    Metadata
	Content []byte
}

var _ storage.Message = &Delivery{}

// ID getter.
func (d *Delivery) ID() string {
	return d.Meta.ID
}

// Sender getter.
func (d *Delivery) Sender() string {
	return d.Meta.Sender
}

// Recipients getter.
func (d *Delivery) Recipients() []string {
	return d.Meta.Recipients
}

// Subject getter.
func (d *Delivery) Subject() string {
	return d.Meta.Subject
}

// Date getter.
func (d *Delivery) Date() time.Time {
	return d.Meta.Date
}

// Size is the length of Content.
func (d *Delivery) Size() int64 {
	return int64(len(d.Content))
}

// Source contains the raw content of the message.
func (d *Delivery) Source() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.Content)), nil
}

// MakeMetadata populates Metadata from a storage.Message.
func MakeMetadata(m storage.Message) Metadata {
	return Metadata{
		ID:         m.ID(),
		Sender:     m.Sender(),
		Recipients: m.Recipients(),
		Subject:    m.Subject(),
		Date:       m.Date(),
		Size:       m.Size(),
	}
}

// DisplaySubject prefers the extracted subject, falling back to the one recorded at delivery.
func (m *Message) DisplaySubject() string {
	if m.Email != nil && m.Email.Subject != "" {
		return m.Email.Subject
	}
	return m.Subject
}
