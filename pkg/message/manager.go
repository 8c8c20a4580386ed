package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/extract"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// DefaultLimit is the number of messages Inbox returns when StoreManager.Limit is unset.
const DefaultLimit = 100

// Manager is the interface controllers use to interact with messages.
type Manager interface {
	Deliver(sender string, recipients []string, source []byte) (id string, err error)
	Inbox(ctx context.Context, query string) ([]*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	Source(id string) (io.ReadCloser, error)
	RemoveMessage(id string) error
	AddressFor(query string) string
}

// StoreManager is a message Manager backed by the storage.Store.
type StoreManager struct {
	Store     storage.Store
	Hub       *msghub.Hub
	Extractor *extract.Extractor
	Domain    string        // Appended to inbox queries without an @.
	Workers   int           // Concurrent extractions per Inbox call.
	Limit     int           // Messages per Inbox call, DefaultLimit when zero.
	Timeout   time.Duration // Bounds extraction within Inbox, no limit when zero.
	Now       func() time.Time
}

var _ Manager = &StoreManager{}

// Deliver submits a new message to the store and announces it on the hub.  The stored sender is the
// normalized envelope sender, or the From header when the envelope sender is empty.
func (s *StoreManager) Deliver(sender string, recipients []string, source []byte) (string, error) {
	recipients = storage.NormalizeRecipients(recipients)
	if len(recipients) == 0 {
		return "", errors.New("no valid recipients")
	}
	headers := extract.HeadersFromMIME(extract.ParsePart(string(source)).Header)
	from := extract.NormalizeSender(sender)
	if from == "" {
		from = extract.NormalizeSender(headers.From)
	}
	delivery := &Delivery{
		Meta: Metadata{
			Sender:     from,
			Recipients: recipients,
			Subject:    headers.Subject,
			Date:       s.now(),
		},
		Content: source,
	}
	log.Debug().Str("module", "message").Strs("recipients", recipients).Msg("Delivering message")
	id, err := s.Store.AddMessage(delivery)
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	if s.Hub != nil {
		s.Hub.Dispatch(msghub.Message{
			ID:         id,
			Sender:     delivery.Sender(),
			Recipients: delivery.Recipients(),
			Subject:    delivery.Subject(),
			Date:       delivery.Date(),
			Size:       delivery.Size(),
		})
	}
	return id, nil
}

// Inbox returns the newest messages addressed to query with their content extracted.  An empty
// query yields an empty list.  When Timeout expires first, the messages whose extraction had not
// completed are returned with a nil Email.
func (s *StoreManager) Inbox(ctx context.Context, query string) ([]*Message, error) {
	address := s.AddressFor(query)
	if address == "" {
		return []*Message{}, nil
	}
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	stored, err := s.Store.FindByRecipient(address, limit)
	if err != nil {
		return nil, fmt.Errorf("find messages for %q: %w", address, err)
	}
	raws := make([][]byte, len(stored))
	for i, sm := range stored {
		if raws[i], err = readSource(sm); err != nil {
			return nil, fmt.Errorf("read message %v: %w", sm.ID(), err)
		}
	}

	exCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		exCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	start := time.Now()
	emails, err := s.extractor().ExtractAll(exCtx, raws, s.Workers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extract inbox %q: %w", address, err)
		}
		// Extraction deadline passed; messages not reached are returned without content.
		log.Warn().Str("module", "message").Str("address", address).Err(err).
			Int("extracted", countExtracted(emails)).Int("count", len(emails)).
			Msg("Inbox extraction incomplete")
	}
	log.Debug().Str("module", "message").Str("address", address).Int("count", len(emails)).
		Dur("elapsed", time.Since(start)).Msg("Extracted inbox")

	msgs := make([]*Message, len(stored))
	for i, sm := range stored {
		msgs[i] = &Message{Metadata: MakeMetadata(sm), Email: emails[i]}
	}
	return msgs, nil
}

// GetMessage returns the specified message with its content extracted.
func (s *StoreManager) GetMessage(ctx context.Context, id string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sm, err := s.Store.GetMessage(id)
	if err != nil {
		return nil, err
	}
	raw, err := readSource(sm)
	if err != nil {
		return nil, fmt.Errorf("read message %v: %w", id, err)
	}
	return &Message{Metadata: MakeMetadata(sm), Email: s.extractor().Extract(raw)}, nil
}

// Source allows the stored message source to be read.
func (s *StoreManager) Source(id string) (io.ReadCloser, error) {
	sm, err := s.Store.GetMessage(id)
	if err != nil {
		return nil, err
	}
	return sm.Source()
}

// RemoveMessage deletes the specified message.
func (s *StoreManager) RemoveMessage(id string) error {
	if err := s.Store.RemoveMessage(id); err != nil {
		return err
	}
	if s.Hub != nil {
		s.Hub.Delete(id)
	}
	return nil
}

// AddressFor turns an inbox query into a normalized address, adding the local domain to bare
// local parts.
func (s *StoreManager) AddressFor(query string) string {
	address := storage.NormalizeAddress(query)
	if address == "" {
		return ""
	}
	if !strings.Contains(address, "@") && s.Domain != "" {
		address += "@" + strings.ToLower(s.Domain)
	}
	return address
}

func (s *StoreManager) extractor() *extract.Extractor {
	if s.Extractor == nil {
		return &extract.Extractor{}
	}
	return s.Extractor
}

func (s *StoreManager) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func readSource(sm storage.Message) ([]byte, error) {
	r, err := sm.Source()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func countExtracted(emails []*extract.Email) int {
	n := 0
	for _, e := range emails {
		if e != nil {
			n++
		}
	}
	return n
}
