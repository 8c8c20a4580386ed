// Package mem implements an in-memory message store, messages are lost on restart.
package mem

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// Store implements an in-memory message store.
type Store struct {
	sync.RWMutex
	boxes    map[string]*mbox    // Keyed by normalized recipient.
	messages map[string]*Message // Keyed by ID.
	last     int
	cap      int           // Per-inbox message cap.
	incoming chan *msgDone // New messages for size enforcer.
	remove   chan *msgDone // Remove deleted messages from size enforcer.
}

// mbox lists the messages delivered to one recipient, in arrival order.
type mbox struct {
	name     string
	messages []*Message
}

var _ storage.Store = &Store{}

// New returns an empty memory store.
func New(cfg config.Storage) (storage.Store, error) {
	s := &Store{
		boxes:    make(map[string]*mbox),
		messages: make(map[string]*Message),
		cap:      cfg.MailboxMsgCap,
	}
	if str, ok := cfg.Params["maxkb"]; ok {
		maxKB, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse maxkb: %w", err)
		}
		if maxKB > 0 {
			// Setup enforcer.
			s.incoming = make(chan *msgDone)
			s.remove = make(chan *msgDone)
			go s.maxSizeEnforcer(maxKB * 1024)
		}
	}
	return s, nil
}

// AddMessage stores the message, message ID and Size will be ignored.
func (s *Store) AddMessage(message storage.Message) (id string, err error) {
	r, err := message.Source()
	if err != nil {
		return "", err
	}
	source, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return "", err
	}
	m := &Message{
		sender:     message.Sender(),
		recipients: storage.NormalizeRecipients(message.Recipients()),
		subject:    message.Subject(),
		date:       message.Date(),
		source:     source,
	}

	var evicted []*Message
	s.Lock()
	s.last++
	m.index = s.last
	m.id = strconv.Itoa(s.last)
	s.messages[m.id] = m
	for _, rcpt := range m.recipients {
		mb := s.boxes[rcpt]
		if mb == nil {
			mb = &mbox{name: rcpt}
			s.boxes[rcpt] = mb
		}
		mb.messages = append(mb.messages, m)
		if s.cap > 0 {
			// Enforce cap.
			for len(mb.messages) > s.cap {
				evicted = append(evicted, s.unlink(mb.messages[0]))
			}
		}
	}
	s.Unlock()

	for _, old := range evicted {
		s.enforcerRemove(old)
	}
	s.enforcerDeliver(m)
	return m.id, nil
}

// GetMessage gets a message.
func (s *Store) GetMessage(id string) (storage.Message, error) {
	s.RLock()
	defer s.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return m, nil
}

// FindByRecipient returns messages delivered to address, newest first.
func (s *Store) FindByRecipient(address string, limit int) ([]storage.Message, error) {
	s.RLock()
	mb := s.boxes[storage.NormalizeAddress(address)]
	var found []*Message
	if mb != nil {
		found = make([]*Message, len(mb.messages))
		copy(found, mb.messages)
	}
	s.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		if !found[i].date.Equal(found[j].date) {
			return found[i].date.After(found[j].date)
		}
		return found[i].index > found[j].index
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ms := make([]storage.Message, len(found))
	for i, m := range found {
		ms[i] = m
	}
	return ms, nil
}

// RemoveMessage deletes a single message.
func (s *Store) RemoveMessage(id string) error {
	m := s.removeMessage(id)
	if m == nil {
		return storage.ErrNotExist
	}
	s.enforcerRemove(m)
	return nil
}

// PurgeOlderThan deletes every message dated before cutoff.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	var purged []*Message
	s.Lock()
	for _, m := range s.messages {
		if m.date.Before(cutoff) {
			purged = append(purged, s.unlink(m))
		}
	}
	s.Unlock()

	for _, m := range purged {
		s.enforcerRemove(m)
	}
	return int64(len(purged)), nil
}

// removeMessage deletes a single message without notifying the size enforcer.  Returns the message
// that was removed, or nil.
func (s *Store) removeMessage(id string) *Message {
	s.Lock()
	defer s.Unlock()
	m := s.messages[id]
	if m == nil {
		return nil
	}
	return s.unlink(m)
}

// unlink removes m from the store and every inbox listing it.  Caller must hold the write lock.
func (s *Store) unlink(m *Message) *Message {
	delete(s.messages, m.id)
	for _, rcpt := range m.recipients {
		mb := s.boxes[rcpt]
		if mb == nil {
			continue
		}
		for i, bm := range mb.messages {
			if bm == m {
				mb.messages = append(mb.messages[:i], mb.messages[i+1:]...)
				break
			}
		}
		if len(mb.messages) == 0 {
			delete(s.boxes, rcpt)
		}
	}
	return m
}
