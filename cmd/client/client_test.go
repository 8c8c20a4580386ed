package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusnotfound04/nanomail/pkg/rest/client"
	"github.com/zeusnotfound04/nanomail/pkg/rest/model"
)

const mboxData = "From alice@example.com Fri Mar  1 11:00:00 2024\n" +
	"From: alice@example.com\n" +
	"Subject: one\n" +
	"\n" +
	"first body\n" +
	"\n" +
	"From bob@example.com Fri Mar  1 12:00:00 2024\n" +
	"From: bob@example.com\n" +
	"Subject: two\n" +
	"\n" +
	"second body\n"

func TestReadMessagesMbox(t *testing.T) {
	name := filepath.Join(t.TempDir(), "inbox.mbox")
	require.NoError(t, os.WriteFile(name, []byte(mboxData), 0600))

	raws, err := readMessages(name, true)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Contains(t, string(raws[0]), "Subject: one")
	assert.Contains(t, string(raws[1]), "Subject: two")
}

func TestReadMessagesSingle(t *testing.T) {
	name := filepath.Join(t.TempDir(), "message.eml")
	require.NoError(t, os.WriteFile(name, []byte("Subject: hi\r\n\r\nbody\r\n"), 0600))

	raws, err := readMessages(name, false)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "Subject: hi\r\n\r\nbody\r\n", string(raws[0]))

	_, err = readMessages(filepath.Join(t.TempDir(), "missing"), false)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	msg := func(text, html string) *client.Message {
		return &client.Message{JSONMessageV1: &model.JSONMessageV1{
			Body: &model.JSONMessageBodyV1{Text: text, HTML: html},
		}}
	}
	assert.Equal(t, "", preview(&client.Message{JSONMessageV1: &model.JSONMessageV1{}}))
	assert.Equal(t, "hello there", preview(msg("hello\n  there\n", "")))
	assert.Equal(t, "from html", preview(msg(" ", "<p>from <b>html</b></p>")))

	long := preview(msg("0123456789 0123456789 0123456789 0123456789 "+
		"0123456789 0123456789 0123456789 0123456789", ""))
	assert.Len(t, []rune(long), previewLen)
	assert.Contains(t, long, "...")
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", baseURL())

	*basePath = "/mail"
	t.Cleanup(func() { *basePath = "" })
	assert.Equal(t, "http://localhost:9000/mail", baseURL())
}

func TestPatternFlag(t *testing.T) {
	var p patternFlag
	assert.False(t, p.Defined())
	assert.True(t, p.MatchString("anything"))

	require.NoError(t, p.Set(`^swaks@`))
	assert.True(t, p.Defined())
	assert.Equal(t, `^swaks@`, p.String())
	assert.True(t, p.MatchString("SWAKS@nanomail.test"))
	assert.False(t, p.MatchString("other@nanomail.test"))

	assert.Error(t, p.Set("("))
	require.NoError(t, p.Set(""))
	assert.False(t, p.Defined())
}

func TestMatchCriteria(t *testing.T) {
	msg := &client.Message{JSONMessageV1: &model.JSONMessageV1{
		From:    "Alice <alice@example.com>",
		To:      []string{"swaks@nanomail.test"},
		Subject: "Your code is 1234",
		Date:    time.Now(),
		Body:    &model.JSONMessageBodyV1{Text: "code: 1234"},
	}}
	m := &matchCmd{}
	require.NoError(t, m.from.Set(`^alice@`))
	require.NoError(t, m.to.Set(`^swaks@`))
	require.NoError(t, m.subject.Set(`code`))
	require.NoError(t, m.body.Set(`\d{4}`))
	m.maxAge = time.Hour
	assert.True(t, m.match(msg))

	require.NoError(t, m.body.Set(`reset link`))
	assert.False(t, m.match(msg))

	m.body = patternFlag{}
	msg.Date = time.Now().Add(-2 * time.Hour)
	assert.False(t, m.match(msg))
}
