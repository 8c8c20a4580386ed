package sqlstore

import (
	"fmt"
	"strings"
)

// dialect holds the column types that differ between supported drivers.
type dialect struct {
	serial    string
	ref       string
	blob      string
	timestamp string
}

var dialects = map[string]dialect{
	"sqlite3": {
		serial:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		ref:       "INTEGER",
		blob:      "BLOB",
		timestamp: "DATETIME",
	},
	"postgres": {
		serial:    "BIGSERIAL PRIMARY KEY",
		ref:       "BIGINT",
		blob:      "BYTEA",
		timestamp: "TIMESTAMPTZ",
	},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS emails (
    id {serial},
    sender TEXT NOT NULL,
    subject TEXT NOT NULL,
    body {blob} NOT NULL,
    size {ref} NOT NULL,
    created_at {timestamp} NOT NULL
);

CREATE INDEX IF NOT EXISTS emails_created_at ON emails(created_at);

CREATE TABLE IF NOT EXISTS email_recipients (
    email_id {ref} NOT NULL REFERENCES emails(id),
    address TEXT NOT NULL,
    PRIMARY KEY (email_id, address)
);

CREATE INDEX IF NOT EXISTS email_recipients_address ON email_recipients(address);
`

func schemaFor(driver string) (string, error) {
	d, ok := dialects[driver]
	if !ok {
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
	return strings.NewReplacer(
		"{serial}", d.serial,
		"{ref}", d.ref,
		"{blob}", d.blob,
		"{timestamp}", d.timestamp,
	).Replace(schemaTemplate), nil
}
