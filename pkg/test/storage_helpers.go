package test

import (
	"fmt"
	"testing"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// DeliverToStore creates and delivers a message addressed to recipient, returning its ID and the
// size of the generated message.
func DeliverToStore(
	t *testing.T,
	store storage.Store,
	recipient string,
	subject string,
	date time.Time,
) (string, int64) {
	t.Helper()
	content := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\nTest Body\r\n",
		recipient, "somebodyelse@host", subject)
	delivery := &message.Delivery{
		Meta: message.Metadata{
			Sender:     "somebodyelse@host",
			Recipients: []string{recipient},
			Subject:    subject,
			Date:       date,
		},
		Content: []byte(content),
	}
	id, err := store.AddMessage(delivery)
	if err != nil {
		t.Fatal(err)
	}
	return id, int64(len(content))
}

// FindAndCount is a test helper that expects to find count messages for address or fails the test.
func FindAndCount(t *testing.T, s storage.Store, address string, count int) []storage.Message {
	t.Helper()
	msgs, err := s.FindByRecipient(address, 1000)
	if err != nil {
		t.Fatalf("Failed to FindByRecipient for %q: %v", address, err)
	}
	if len(msgs) != count {
		t.Errorf("Got %v messages for %q, want: %v", len(msgs), address, count)
	}
	return msgs
}
