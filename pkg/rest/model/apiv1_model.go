// Package model holds the JSON representations of the REST API.
package model

import (
	"time"
)

// JSONMessageHeaderV1 contains the basic header data for a message
type JSONMessageHeaderV1 struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Size    int64     `json:"size"`
}

// JSONMessageV1 contains the same data as the header plus the extracted content
type JSONMessageV1 struct {
	ID          string                     `json:"id"`
	From        string                     `json:"from"`
	To          []string                   `json:"to"`
	Subject     string                     `json:"subject"`
	Date        time.Time                  `json:"date"`
	Sent        time.Time                  `json:"sent"`
	Size        int64                      `json:"size"`
	Strategy    string                     `json:"strategy"`
	Body        *JSONMessageBodyV1         `json:"body"`
	Attachments []*JSONMessageAttachmentV1 `json:"attachments"`
}

// JSONMessageAttachmentV1 describes a non-body part of a message.
type JSONMessageAttachmentV1 struct {
	FileName    string `json:"filename"`
	ContentType string `json:"content-type"`
	Size        int    `json:"size"`
	MD5         string `json:"md5"`
}

// JSONMessageBodyV1 contains the Text and HTML versions of the message body
type JSONMessageBodyV1 struct {
	Text       string `json:"text"`
	HTML       string `json:"html"`
	TextAsHTML string `json:"textAsHtml"`
}

// JSONMonitorEventV1 is sent to inbox monitor websockets.
type JSONMonitorEventV1 struct {
	// Event variant: `message-deleted`, `message-stored`.
	Variant string               `json:"variant"`
	Header  *JSONMessageHeaderV1 `json:"header,omitempty"`
	ID      string               `json:"id,omitempty"`
}
