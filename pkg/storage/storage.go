// Package storage contains implementation independent datastore logic
package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zeusnotfound04/nanomail/pkg/config"
)

var (
	// ErrNotExist indicates the requested message does not exist.
	ErrNotExist = errors.New("message does not exist")

	// Constructors tracks registered storage constructors, keyed by config.Storage.Type.
	Constructors = make(map[string]func(config.Storage) (Store, error))
)

// Store is the interface nanomail uses to persist raw messages.  Recipient addresses are matched
// without regard to case.
type Store interface {
	// AddMessage stores m and returns its new ID; m's ID and Size are ignored.
	AddMessage(m Message) (id string, err error)
	// GetMessage returns ErrNotExist if there is no message with the given ID.
	GetMessage(id string) (Message, error)
	// FindByRecipient returns up to limit messages addressed to address, newest first.
	FindByRecipient(address string, limit int) ([]Message, error)
	// RemoveMessage returns ErrNotExist if there is no message with the given ID.
	RemoveMessage(id string) error
	// PurgeOlderThan deletes messages received before cutoff, returning the number deleted.
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

// Message represents a stored message.
type Message interface {
	ID() string
	Sender() string
	Recipients() []string
	Subject() string
	Date() time.Time
	Size() int64
	Source() (io.ReadCloser, error)
}

// FromConfig creates an instance of the Store based on the provided config.
func FromConfig(c config.Storage) (store Store, err error) {
	if cf, ok := Constructors[c.Type]; ok {
		return cf(c)
	}
	return nil, fmt.Errorf("unknown storage type configured: %q", c.Type)
}

// NormalizeAddress returns the form of address used to match recipients.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeRecipients normalizes each address, dropping blanks and duplicates.
func NormalizeRecipients(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	result := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = NormalizeAddress(a)
		if _, dup := seen[a]; dup || a == "" {
			continue
		}
		seen[a] = struct{}{}
		result = append(result, a)
	}
	return result
}
