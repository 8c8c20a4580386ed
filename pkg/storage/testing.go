package storage

import (
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a shared mock for unit testing.
type MockStore struct {
	mock.Mock
}

var _ Store = &MockStore{}

// AddMessage mock function
func (m *MockStore) AddMessage(msg Message) (string, error) {
	args := m.Called(msg)
	return args.String(0), args.Error(1)
}

// GetMessage mock function
func (m *MockStore) GetMessage(id string) (Message, error) {
	args := m.Called(id)
	msg, _ := args.Get(0).(Message)
	return msg, args.Error(1)
}

// FindByRecipient mock function
func (m *MockStore) FindByRecipient(address string, limit int) ([]Message, error) {
	args := m.Called(address, limit)
	msgs, _ := args.Get(0).([]Message)
	return msgs, args.Error(1)
}

// RemoveMessage mock function
func (m *MockStore) RemoveMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

// PurgeOlderThan mock function
func (m *MockStore) PurgeOlderThan(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessage is a shared mock for unit testing.
type MockMessage struct {
	mock.Mock
}

var _ Message = &MockMessage{}

// ID mock function
func (m *MockMessage) ID() string {
	return m.Called().String(0)
}

// Sender mock function
func (m *MockMessage) Sender() string {
	return m.Called().String(0)
}

// Recipients mock function
func (m *MockMessage) Recipients() []string {
	rcpts, _ := m.Called().Get(0).([]string)
	return rcpts
}

// Subject mock function
func (m *MockMessage) Subject() string {
	return m.Called().String(0)
}

// Date mock function
func (m *MockMessage) Date() time.Time {
	return m.Called().Get(0).(time.Time)
}

// Size mock function
func (m *MockMessage) Size() int64 {
	return m.Called().Get(0).(int64)
}

// Source mock function
func (m *MockMessage) Source() (io.ReadCloser, error) {
	args := m.Called()
	r, _ := args.Get(0).(io.ReadCloser)
	return r, args.Error(1)
}
