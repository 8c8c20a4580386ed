// Package test holds shared helpers for testing nanomail components.
package test

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// StoreFactory returns a new store for the test suite.
type StoreFactory func(config.Storage) (store storage.Store, destroy func(), err error)

// StoreSuite runs a set of general tests on the provided Store.
func StoreSuite(t *testing.T, factory StoreFactory) {
	testCases := []struct {
		name string
		test func(*testing.T, storage.Store)
		conf config.Storage
	}{
		{"metadata", testMetadata, config.Storage{}},
		{"content", testContent, config.Storage{}},
		{"recipient case", testRecipientCase, config.Storage{}},
		{"newest first", testNewestFirst, config.Storage{}},
		{"limit", testLimit, config.Storage{}},
		{"shared message", testSharedMessage, config.Storage{}},
		{"remove", testRemove, config.Storage{}},
		{"purge older than", testPurgeOlderThan, config.Storage{}},
		{"cap", testCap, config.Storage{MailboxMsgCap: 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, destroy, err := factory(tc.conf)
			if err != nil {
				t.Fatal(err)
			}
			tc.test(t, store)
			destroy()
		})
	}
}

// testMetadata verifies message metadata is stored and retrieved correctly.
func testMetadata(t *testing.T, store storage.Store) {
	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	content := "doesn't matter"
	delivery := &message.Delivery{
		Meta: message.Metadata{
			// ID and Size will be determined by the Store.
			Sender:     "from@person.com",
			Recipients: []string{"one@a.person.com", "two@b.person.com"},
			Subject:    "fantastic test subject line",
			Date:       date,
		},
		Content: []byte(content),
	}
	id, err := store.AddMessage(delivery)
	require.NoError(t, err)
	require.NotEmpty(t, id, "AddMessage() must return a non-empty ID")

	sm, err := store.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, id, sm.ID())
	assert.Equal(t, "from@person.com", sm.Sender())
	assert.ElementsMatch(t, []string{"one@a.person.com", "two@b.person.com"}, sm.Recipients())
	assert.Equal(t, "fantastic test subject line", sm.Subject())
	assert.True(t, sm.Date().Equal(date), "got date %v, want %v", sm.Date(), date)
	assert.Equal(t, int64(len(content)), sm.Size())
}

// testContent verifies the message source is stored unchanged.
func testContent(t *testing.T, store storage.Store) {
	content := "From: fred@fish.com\r\nSubject: binary\r\n\r\n\x00\xff\xfe body \r\n.\r\n"
	id, err := store.AddMessage(&message.Delivery{
		Meta:    message.Metadata{Recipients: []string{"a@b.com"}, Date: time.Now()},
		Content: []byte(content),
	})
	require.NoError(t, err)
	sm, err := store.GetMessage(id)
	require.NoError(t, err)
	r, err := sm.Source()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, content, string(got))
}

// testRecipientCase verifies recipients are matched without regard to case.
func testRecipientCase(t *testing.T, store storage.Store) {
	DeliverToStore(t, store, "Mixed.Case@Example.COM", "hello", time.Now())
	FindAndCount(t, store, "mixed.case@example.com", 1)
	FindAndCount(t, store, "MIXED.CASE@EXAMPLE.COM", 1)
	FindAndCount(t, store, "other@example.com", 0)
}

// testNewestFirst verifies FindByRecipient ordering.
func testNewestFirst(t *testing.T, store storage.Store) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Deliver out of date order.
	for _, h := range []int{2, 0, 3, 1} {
		DeliverToStore(t, store, "order@host", fmt.Sprintf("hour %d", h), base.Add(time.Duration(h)*time.Hour))
	}
	msgs := FindAndCount(t, store, "order@host", 4)
	subjects := make([]string, len(msgs))
	for i, m := range msgs {
		subjects[i] = m.Subject()
	}
	assert.Equal(t, []string{"hour 3", "hour 2", "hour 1", "hour 0"}, subjects)
}

// testLimit verifies FindByRecipient returns at most limit messages.
func testLimit(t *testing.T, store storage.Store) {
	base := time.Now().Add(-time.Hour)
	for i := range 10 {
		DeliverToStore(t, store, "limit@host", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second))
	}
	msgs, err := store.FindByRecipient("limit@host", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 9", msgs[0].Subject())
	assert.Equal(t, "msg 7", msgs[2].Subject())
}

// testSharedMessage verifies a message with several recipients is found by each of them.
func testSharedMessage(t *testing.T, store storage.Store) {
	id, err := store.AddMessage(&message.Delivery{
		Meta: message.Metadata{
			Recipients: []string{"first@host", "second@host", "FIRST@host"},
			Date:       time.Now(),
		},
		Content: []byte("Subject: shared\r\n\r\nbody"),
	})
	require.NoError(t, err)
	first := FindAndCount(t, store, "first@host", 1)
	second := FindAndCount(t, store, "second@host", 1)
	if len(first) == 1 && len(second) == 1 {
		assert.Equal(t, id, first[0].ID())
		assert.Equal(t, id, second[0].ID())
	}
	sm, err := store.GetMessage(id)
	require.NoError(t, err)
	assert.Len(t, sm.Recipients(), 2)
}

// testRemove verifies single message removal.
func testRemove(t *testing.T, store storage.Store) {
	now := time.Now()
	ids := make([]string, 3)
	for i := range ids {
		ids[i], _ = DeliverToStore(t, store, "remove@host", fmt.Sprintf("msg %d", i), now)
	}
	require.NoError(t, store.RemoveMessage(ids[1]))
	msgs := FindAndCount(t, store, "remove@host", 2)
	for _, m := range msgs {
		assert.NotEqual(t, ids[1], m.ID())
	}
	_, err := store.GetMessage(ids[1])
	assert.ErrorIs(t, err, storage.ErrNotExist)
	assert.ErrorIs(t, store.RemoveMessage(ids[1]), storage.ErrNotExist)
	_, err = store.GetMessage("99999")
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

// testPurgeOlderThan verifies messages before the cutoff are deleted from every inbox.
func testPurgeOlderThan(t *testing.T, store storage.Store) {
	now := time.Now()
	DeliverToStore(t, store, "purge1@host", "old", now.Add(-48*time.Hour))
	DeliverToStore(t, store, "purge1@host", "new", now.Add(-1*time.Hour))
	DeliverToStore(t, store, "purge2@host", "old", now.Add(-72*time.Hour))
	DeliverToStore(t, store, "purge2@host", "older", now.Add(-96*time.Hour))

	n, err := store.PurgeOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	msgs := FindAndCount(t, store, "purge1@host", 1)
	if len(msgs) == 1 {
		assert.Equal(t, "new", msgs[0].Subject())
	}
	FindAndCount(t, store, "purge2@host", 0)

	n, err = store.PurgeOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// testCap verifies the per-inbox message cap evicts the oldest messages.
func testCap(t *testing.T, store storage.Store) {
	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		DeliverToStore(t, store, "capped@host", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second))
	}
	msgs := FindAndCount(t, store, "capped@host", 3)
	if len(msgs) == 3 {
		assert.Equal(t, "msg 4", msgs[0].Subject())
		assert.Equal(t, "msg 2", msgs[2].Subject())
	}
}
