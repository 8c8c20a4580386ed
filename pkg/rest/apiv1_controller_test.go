package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusnotfound04/nanomail/pkg/extract"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/test"
)

const baseURL = "http://localhost/api/v1"

var received = time.Date(2024, 2, 1, 10, 11, 12, 0, time.UTC)

func testMessage(id, subject string, recipients ...string) *message.Message {
	return &message.Message{
		Metadata: message.Metadata{
			ID:         id,
			Sender:     "envelope@example.com",
			Recipients: recipients,
			Subject:    subject,
			Date:       received,
			Size:       100,
		},
		Email: &extract.Email{
			Subject:    subject,
			Sender:     "from@example.com",
			Text:       "Hello " + id,
			TextAsHTML: extract.TextToHTML("Hello " + id),
			HTML:       `<p onclick="steal()">Hello <b>` + id + `</b></p><script>x()</script>`,
			Date:       received.Add(-time.Hour),
			Attachments: []*extract.Attachment{
				{FileName: "a.txt", ContentType: "text/plain", Content: []byte("abc")},
			},
			Strategy: extract.LibraryParse,
		},
	}
}

func decodeJSON(t *testing.T, body io.Reader) any {
	t.Helper()
	var result any
	require.NoError(t, json.NewDecoder(body).Decode(&result))
	return result
}

func TestRestInboxList(t *testing.T) {
	mm := test.NewManager()
	logbuf := setupWebServer(t, mm, nil)

	// Test empty inbox
	w, err := testRestGet(baseURL + "/inbox/empty")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	// Test inbox error
	w, err = testRestGet(baseURL + "/inbox/inboxerr")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	mm.AddMessage(testMessage("0001", "subject 1", "good@nanomail.test"), nil)
	mm.AddMessage(testMessage("0002", "subject 2", "other@nanomail.test", "good@nanomail.test"), nil)
	mm.AddMessage(testMessage("0003", "subject 3", "other@nanomail.test"), nil)

	w, err = testRestGet(baseURL + "/inbox/GOOD")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeJSON(t, w.Body)
	list, ok := result.([]any)
	require.True(t, ok, "result is not a list")
	assert.Len(t, list, 2)

	decodedStringEquals(t, result, "[0]/id", "0001")
	decodedStringEquals(t, result, "[0]/from", "from@example.com")
	decodedStringEquals(t, result, "[0]/to/[0]", "good@nanomail.test")
	decodedStringEquals(t, result, "[0]/subject", "subject 1")
	decodedStringEquals(t, result, "[0]/date", "2024-02-01T10:11:12Z")
	decodedStringEquals(t, result, "[0]/sent", "2024-02-01T09:11:12Z")
	decodedStringEquals(t, result, "[0]/strategy", "LibraryParse")
	decodedNumberEquals(t, result, "[0]/size", 100)
	decodedStringEquals(t, result, "[0]/body/text", "Hello 0001")
	decodedStringEquals(t, result, "[0]/body/textAsHtml", "Hello 0001")
	decodedStringEquals(t, result, "[1]/id", "0002")
	decodedStringEquals(t, result, "[1]/to/[1]", "good@nanomail.test")

	if t.Failed() {
		// Dump buffered log data if there was a failure
		t.Log(logbuf.String())
	}
}

func TestRestInboxShow(t *testing.T) {
	mm := test.NewManager()
	setupWebServer(t, mm, nil)
	mm.AddMessage(testMessage("0001", "subject 1", "good@nanomail.test"), nil)

	// Unknown message
	w, err := testRestGet(baseURL + "/inbox/good/0999")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Manager error
	w, err = testRestGet(baseURL + "/inbox/good/messageerr")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Message exists, but not in this inbox
	w, err = testRestGet(baseURL + "/inbox/other/0001")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, err = testRestGet(baseURL + "/inbox/good@nanomail.test/0001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeJSON(t, w.Body)
	decodedStringEquals(t, result, "id", "0001")
	decodedStringEquals(t, result, "subject", "subject 1")
	decodedStringEquals(t, result, "body/html", "<p>Hello <b>0001</b></p>")
	decodedStringEquals(t, result, "attachments/[0]/filename", "a.txt")
	decodedStringEquals(t, result, "attachments/[0]/content-type", "text/plain")
	decodedNumberEquals(t, result, "attachments/[0]/size", 3)
	decodedStringEquals(t, result, "attachments/[0]/md5", "900150983cd24fb0d6963f7d28e17f72")
}

func TestRestInboxShowWithoutExtraction(t *testing.T) {
	mm := test.NewManager()
	setupWebServer(t, mm, nil)
	msg := testMessage("0001", "stored subject", "good@nanomail.test")
	msg.Email = nil
	mm.AddMessage(msg, nil)

	w, err := testRestGet(baseURL + "/inbox/good/0001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeJSON(t, w.Body)
	decodedStringEquals(t, result, "subject", "stored subject")
	decodedStringEquals(t, result, "from", "envelope@example.com")
	decodedStringEquals(t, result, "body/text", "")
}

func TestRestInboxSource(t *testing.T) {
	mm := test.NewManager()
	setupWebServer(t, mm, nil)
	source := "Subject: subject 1\r\n\r\nHello\r\n"
	mm.AddMessage(testMessage("0001", "subject 1", "good@nanomail.test"), []byte(source))

	w, err := testRestGet(baseURL + "/inbox/good/0001/source")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, source, w.Body.String())

	w, err = testRestGet(baseURL + "/inbox/good/0999/source")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, err = testRestGet(baseURL + "/inbox/good/messageerr/source")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRestInboxDelete(t *testing.T) {
	mm := test.NewManager()
	setupWebServer(t, mm, nil)
	mm.AddMessage(testMessage("0001", "subject 1", "good@nanomail.test"), nil)

	w, err := testRestRequest("DELETE", baseURL+"/inbox/good/0001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"OK"`, w.Body.String())

	w, err = testRestRequest("DELETE", baseURL+"/inbox/good/0001")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, err = testRestRequest("DELETE", baseURL+"/inbox/good/messageerr")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRestNoRoute(t *testing.T) {
	mm := test.NewManager()
	setupWebServer(t, mm, nil)

	w, err := testRestGet(baseURL + "/nothing/here")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, err = testRestRequest("POST", baseURL+"/inbox/good")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
