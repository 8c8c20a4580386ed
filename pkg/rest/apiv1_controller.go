package rest

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/rest/model"
	"github.com/zeusnotfound04/nanomail/pkg/sanitize"
	"github.com/zeusnotfound04/nanomail/pkg/server/web"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// InboxListV1 renders the newest messages delivered to an address, with extracted content.
func InboxListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	// Don't have to validate these aren't empty, Gorilla returns 404
	address := ctx.Vars["address"]
	messages, err := ctx.Manager.Inbox(req.Context(), address)
	if err != nil {
		// This doesn't indicate empty, likely an IO error
		return fmt.Errorf("failed to get messages for %v: %w", address, err)
	}
	log.Debug().Str("module", "rest").Str("address", address).Int("count", len(messages)).
		Msg("Listed inbox")

	jmessages := make([]*model.JSONMessageV1, len(messages))
	for i, msg := range messages {
		jmessages[i] = makeJSONMessage(msg)
	}
	return web.RenderJSON(w, jmessages)
}

// InboxShowV1 renders a particular message from an inbox.
func InboxShowV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	id := ctx.Vars["id"]
	msg, err := ctx.Manager.GetMessage(req.Context(), id)
	if errors.Is(err, storage.ErrNotExist) {
		http.NotFound(w, req)
		return nil
	}
	if err != nil {
		// This doesn't indicate missing, likely an IO error
		return fmt.Errorf("GetMessage(%q) failed: %w", id, err)
	}
	if !slices.Contains(msg.Recipients, ctx.Manager.AddressFor(ctx.Vars["address"])) {
		// Message exists, but was not delivered to this inbox.
		http.NotFound(w, req)
		return nil
	}
	return web.RenderJSON(w, makeJSONMessage(msg))
}

// InboxSourceV1 displays the raw source of a message, including headers. Renders text/plain
func InboxSourceV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	id := ctx.Vars["id"]
	r, err := ctx.Manager.Source(id)
	if errors.Is(err, storage.ErrNotExist) {
		http.NotFound(w, req)
		return nil
	}
	if err != nil {
		// This doesn't indicate missing, likely an IO error
		return fmt.Errorf("Source(%q) failed: %w", id, err)
	}
	defer func() { _ = r.Close() }()
	// Output message source
	w.Header().Set("Content-Type", "text/plain")
	_, err = io.Copy(w, r)
	return err
}

// InboxDeleteV1 removes a particular message.
func InboxDeleteV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	id := ctx.Vars["id"]
	err = ctx.Manager.RemoveMessage(id)
	if errors.Is(err, storage.ErrNotExist) {
		http.NotFound(w, req)
		return nil
	}
	if err != nil {
		// This doesn't indicate missing, likely an IO error
		return fmt.Errorf("RemoveMessage(%q) failed: %w", id, err)
	}
	return web.RenderJSON(w, "OK")
}

// makeJSONMessage converts a message for output, falling back to the stored metadata wherever
// extraction came up empty.
func makeJSONMessage(msg *message.Message) *model.JSONMessageV1 {
	jmsg := &model.JSONMessageV1{
		ID:          msg.ID,
		From:        msg.Sender,
		To:          msg.Recipients,
		Subject:     msg.DisplaySubject(),
		Date:        msg.Date,
		Size:        msg.Size,
		Body:        &model.JSONMessageBodyV1{},
		Attachments: []*model.JSONMessageAttachmentV1{},
	}
	email := msg.Email
	if email == nil {
		return jmsg
	}
	if email.Sender != "" {
		jmsg.From = email.Sender
	}
	jmsg.Sent = email.Date
	jmsg.Strategy = email.Strategy.String()
	jmsg.Body.Text = email.Text
	jmsg.Body.TextAsHTML = email.TextAsHTML
	if email.HTML != "" {
		html, err := sanitize.HTML(email.HTML)
		if err != nil {
			log.Warn().Str("module", "rest").Str("id", msg.ID).Err(err).
				Msg("HTML sanitizer failed, dropping HTML body")
		}
		jmsg.Body.HTML = html
	}
	for _, att := range email.Attachments {
		checksum := md5.Sum(att.Content)
		jmsg.Attachments = append(jmsg.Attachments, &model.JSONMessageAttachmentV1{
			FileName:    att.FileName,
			ContentType: att.ContentType,
			Size:        len(att.Content),
			MD5:         hex.EncodeToString(checksum[:]),
		})
	}
	return jmsg
}
