package sqlstore

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// emailRow maps the emails table.
type emailRow struct {
	ID        int64     `db:"id"`
	Sender    string    `db:"sender"`
	Subject   string    `db:"subject"`
	Body      []byte    `db:"body"`
	Size      int64     `db:"size"`
	CreatedAt time.Time `db:"created_at"`
}

type recipientRow struct {
	EmailID int64  `db:"email_id"`
	Address string `db:"address"`
}

// Message is a message loaded from the database.
type Message struct {
	row        emailRow
	recipients []string
}

var _ storage.Message = &Message{}

// ID the message ID.
func (m *Message) ID() string { return strconv.FormatInt(m.row.ID, 10) }

// Sender returns the envelope sender.
func (m *Message) Sender() string { return m.row.Sender }

// Recipients returns the normalized recipient addresses.
func (m *Message) Recipients() []string { return m.recipients }

// Subject returns the subject recorded at delivery.
func (m *Message) Subject() string { return m.row.Subject }

// Date returns the date received.
func (m *Message) Date() time.Time { return m.row.CreatedAt }

// Size returns the message size in bytes.
func (m *Message) Size() int64 { return m.row.Size }

// Source returns a reader for the message source.
func (m *Message) Source() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.row.Body)), nil
}
