package message_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/extract"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
	"github.com/zeusnotfound04/nanomail/pkg/storage/mem"
)

var received = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const plainMessage = "From: \"Fred\" <Fred@Example.com>\r\n" +
	"To: u1@nanomail.test\r\n" +
	"Subject: tsub\r\n" +
	"Date: Fri, 1 Mar 2024 11:00:00 +0000\r\n" +
	"\r\n" +
	"test email\r\n"

func TestDeliverStoresMessages(t *testing.T) {
	sm := testStoreManager(t, nil)

	id, err := sm.Deliver("from@example.com", []string{"U1@nanomail.test", "u2@nanomail.test"},
		[]byte(plainMessage))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assertMessageCount(t, sm, "u1@nanomail.test", 1)
	assertMessageCount(t, sm, "u2@nanomail.test", 1)

	stored, err := sm.Store.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, "from@example.com", stored.Sender())
	assert.Equal(t, "tsub", stored.Subject())
	assert.True(t, stored.Date().Equal(received))
	assert.Equal(t, int64(len(plainMessage)), stored.Size())
}

func TestDeliverSenderFallsBackToFromHeader(t *testing.T) {
	sm := testStoreManager(t, nil)

	id, err := sm.Deliver("  ", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)
	stored, err := sm.Store.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, "Fred@Example.com", stored.Sender())
}

func TestDeliverNormalizesEnvelopeSender(t *testing.T) {
	sm := testStoreManager(t, nil)

	id, err := sm.Deliver("<bounce@example.com> SIZE=1024", []string{"u1@nanomail.test"},
		[]byte(plainMessage))
	require.NoError(t, err)
	stored, err := sm.Store.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, "bounce@example.com", stored.Sender())
}

func TestDeliverRequiresRecipients(t *testing.T) {
	sm := testStoreManager(t, nil)

	_, err := sm.Deliver("from@example.com", []string{" ", ""}, []byte(plainMessage))
	assert.Error(t, err)
}

func TestDeliverDispatchesToHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := msghub.New(5)
	go hub.Start(ctx)
	sm := testStoreManager(t, hub)

	l := &recordingListener{}
	hub.AddListener(l)
	id, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)
	require.NoError(t, sm.RemoveMessage(id))
	hub.Sync()

	require.Len(t, l.messages, 1)
	got := l.messages[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "tsub", got.Subject)
	assert.Equal(t, []string{"u1@nanomail.test"}, got.Recipients)
	assert.Equal(t, int64(len(plainMessage)), got.Size)
	assert.Equal(t, []string{id}, l.deletes)
}

func TestDeliverStoreError(t *testing.T) {
	store := &storage.MockStore{}
	store.On("AddMessage", mock.Anything).Return("", errors.New("disk full"))
	sm := &message.StoreManager{Store: store}

	_, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	store.AssertExpectations(t)
}

func TestAddressFor(t *testing.T) {
	sm := &message.StoreManager{Domain: "Nanomail.Test"}
	testCases := []struct {
		query, want string
	}{
		{"", ""},
		{"   ", ""},
		{"swaks", "swaks@nanomail.test"},
		{"  SWAKS ", "swaks@nanomail.test"},
		{"Someone@Elsewhere.com", "someone@elsewhere.com"},
	}
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, sm.AddressFor(tc.query))
		})
	}
}

func TestInboxEmptyQuery(t *testing.T) {
	store := &storage.MockStore{}
	sm := &message.StoreManager{Store: store}

	msgs, err := sm.Inbox(context.Background(), "  ")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	store.AssertNotCalled(t, "FindByRecipient", mock.Anything, mock.Anything)
}

func TestInboxExtractsNewestFirst(t *testing.T) {
	sm := testStoreManager(t, nil)
	clock := received
	sm.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	for _, subj := range []string{"first", "second", "third"} {
		raw := strings.Replace(plainMessage, "Subject: tsub", "Subject: "+subj, 1)
		_, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(raw))
		require.NoError(t, err)
	}

	// Bare local part gets the configured domain.
	msgs, err := sm.Inbox(context.Background(), " U1 ")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, want := range []string{"third", "second", "first"} {
		assert.Equal(t, want, msgs[i].Subject)
		require.NotNil(t, msgs[i].Email)
		assert.Equal(t, want, msgs[i].Email.Subject)
		assert.Equal(t, want, msgs[i].DisplaySubject())
		assert.Equal(t, "test email", strings.TrimSpace(msgs[i].Email.Text))
		assert.Equal(t, "fred@example.com", strings.ToLower(msgs[i].Email.Sender))
		assert.Equal(t, extract.ManualMIME, msgs[i].Email.Strategy)
	}
}

func TestInboxLimit(t *testing.T) {
	sm := testStoreManager(t, nil)
	sm.Limit = 2
	for range 5 {
		_, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
		require.NoError(t, err)
	}
	msgs, err := sm.Inbox(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestInboxDefaultLimit(t *testing.T) {
	store := &storage.MockStore{}
	store.On("FindByRecipient", "u1@nanomail.test", message.DefaultLimit).Return([]storage.Message{}, nil)
	sm := &message.StoreManager{Store: store, Domain: "nanomail.test"}

	msgs, err := sm.Inbox(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	store.AssertExpectations(t)
}

func TestInboxStoreError(t *testing.T) {
	store := &storage.MockStore{}
	store.On("FindByRecipient", "u1@nanomail.test", mock.Anything).
		Return([]storage.Message(nil), errors.New("db gone"))
	sm := &message.StoreManager{Store: store, Domain: "nanomail.test"}

	_, err := sm.Inbox(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestInboxCanceled(t *testing.T) {
	sm := testStoreManager(t, nil)
	_, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sm.Inbox(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInboxTimeoutReturnsPartialContent(t *testing.T) {
	const attachmentOnly = "Subject: slow\r\n" +
		"Content-Type: multipart/mixed; boundary=\"zz\"\r\n" +
		"\r\n" +
		"--zz\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=\"a.pdf\"\r\n" +
		"\r\n" +
		"data\r\n" +
		"--zz--\r\n"

	sm := testStoreManager(t, nil)
	clock := received
	sm.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	sm.Workers = 1
	sm.Timeout = 20 * time.Millisecond
	// Only the attachment-only message reaches the library parser.
	sm.Extractor.Parse = func(raw []byte) (*enmime.Envelope, error) {
		time.Sleep(200 * time.Millisecond)
		return extract.ReadEnvelope(raw)
	}
	for _, raw := range []string{
		strings.Replace(plainMessage, "Subject: tsub", "Subject: first", 1),
		attachmentOnly,
		strings.Replace(plainMessage, "Subject: tsub", "Subject: third", 1),
	} {
		_, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(raw))
		require.NoError(t, err)
	}

	msgs, err := sm.Inbox(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[0].Email)
	assert.Equal(t, "third", msgs[0].Email.Subject)
	require.NotNil(t, msgs[1].Email)
	assert.Equal(t, extract.LibraryParse, msgs[1].Email.Strategy)
	// Never scheduled, metadata only.
	assert.Nil(t, msgs[2].Email)
	assert.Equal(t, "first", msgs[2].DisplaySubject())
}

func TestGetMessage(t *testing.T) {
	sm := testStoreManager(t, nil)
	id, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)

	msg, err := sm.GetMessage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, "tsub", msg.Email.Subject)
	assert.True(t, msg.Email.Date.Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))

	_, err = sm.GetMessage(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestSource(t *testing.T) {
	sm := testStoreManager(t, nil)
	id, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)

	r, err := sm.Source(id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, plainMessage, string(got))

	_, err = sm.Source("nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestRemoveMessage(t *testing.T) {
	sm := testStoreManager(t, nil)
	id, err := sm.Deliver("from@example.com", []string{"u1@nanomail.test"}, []byte(plainMessage))
	require.NoError(t, err)

	require.NoError(t, sm.RemoveMessage(id))
	assertMessageCount(t, sm, "u1@nanomail.test", 0)
	assert.ErrorIs(t, sm.RemoveMessage(id), storage.ErrNotExist)
}

func TestDisplaySubjectFallback(t *testing.T) {
	msg := &message.Message{Metadata: message.Metadata{Subject: "stored"}}
	assert.Equal(t, "stored", msg.DisplaySubject())
	msg.Email = &extract.Email{}
	assert.Equal(t, "stored", msg.DisplaySubject())
	msg.Email.Subject = "extracted"
	assert.Equal(t, "extracted", msg.DisplaySubject())
}

// recordingListener captures hub events, it is only read after hub.Sync().
type recordingListener struct {
	messages []msghub.Message
	deletes  []string
}

func (l *recordingListener) Receive(msg msghub.Message) error {
	l.messages = append(l.messages, msg)
	return nil
}

func (l *recordingListener) Delete(id string) error {
	l.deletes = append(l.deletes, id)
	return nil
}

func testStoreManager(t *testing.T, hub *msghub.Hub) *message.StoreManager {
	t.Helper()
	store, err := mem.New(config.Storage{})
	require.NoError(t, err)
	quiet := zerolog.Nop()
	return &message.StoreManager{
		Store:     store,
		Hub:       hub,
		Extractor: &extract.Extractor{Logger: &quiet},
		Domain:    "nanomail.test",
		Workers:   2,
		Now:       func() time.Time { return received },
	}
}

func assertMessageCount(t *testing.T, sm *message.StoreManager, address string, count int) {
	t.Helper()
	msgs, err := sm.Store.FindByRecipient(address, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, count, "messages for %q", address)
}
