// Package sqlstore implements a message store on a SQL database through sqlx.  SQLite and
// PostgreSQL are supported.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

const (
	defaultDriver = "sqlite3"
	defaultDSN    = "nanomail.db?_journal_mode=WAL&_busy_timeout=5000"
)

// Store implements storage.Store on a SQL database.
type Store struct {
	db  *sqlx.DB
	cap int // Per-inbox message cap.
}

var _ storage.Store = &Store{}

// New connects to the database named by cfg and creates the schema if needed.  The driver is taken
// from the "driver" parameter, and the connection string from cfg.DSN.
func New(cfg config.Storage) (storage.Store, error) {
	driver := cfg.Params["driver"]
	if driver == "" {
		driver = defaultDriver
	}
	dsn := cfg.DSN
	if dsn == "" {
		if driver != defaultDriver {
			return nil, fmt.Errorf("a DSN is required for the %s driver", driver)
		}
		dsn = defaultDSN
	}
	schema, err := schemaFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == defaultDriver {
		// SQLite allows a single writer, and each :memory: connection is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("module", "storage").Str("phase", "startup").Str("driver", driver).
		Msg("SQL storage ready")
	return &Store{db: db, cap: cfg.MailboxMsgCap}, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddMessage stores the message, message ID and Size will be ignored.
func (s *Store) AddMessage(m storage.Message) (string, error) {
	r, err := m.Source()
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return "", err
	}
	recipients := storage.NormalizeRecipients(m.Recipients())

	tx, err := s.db.Beginx()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowx(tx.Rebind(
		`INSERT INTO emails (sender, subject, body, size, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		m.Sender(), m.Subject(), body, int64(len(body)), m.Date().UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert email: %w", err)
	}
	for _, rcpt := range recipients {
		_, err := tx.Exec(tx.Rebind(
			`INSERT INTO email_recipients (email_id, address) VALUES (?, ?)`), id, rcpt)
		if err != nil {
			return "", fmt.Errorf("insert recipient %q: %w", rcpt, err)
		}
	}
	if s.cap > 0 {
		for _, rcpt := range recipients {
			if err := s.enforceCap(tx, rcpt); err != nil {
				return "", err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// enforceCap deletes the oldest messages for address beyond the per-inbox cap.
func (s *Store) enforceCap(tx *sqlx.Tx, address string) error {
	var ids []int64
	err := tx.Select(&ids, tx.Rebind(
		`SELECT e.id FROM emails e JOIN email_recipients r ON r.email_id = e.id
		 WHERE r.address = ? ORDER BY e.created_at DESC, e.id DESC`), address)
	if err != nil {
		return fmt.Errorf("select inbox %q: %w", address, err)
	}
	if len(ids) <= s.cap {
		return nil
	}
	return deleteIDs(tx, ids[s.cap:])
}

// GetMessage gets a message.
func (s *Store) GetMessage(id string) (storage.Message, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, storage.ErrNotExist
	}
	var row emailRow
	err = s.db.Get(&row, s.db.Rebind(
		`SELECT id, sender, subject, body, size, created_at FROM emails WHERE id = ?`), n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	msgs, err := s.attachRecipients([]emailRow{row})
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// FindByRecipient returns messages delivered to address, newest first.
func (s *Store) FindByRecipient(address string, limit int) ([]storage.Message, error) {
	query := `SELECT e.id, e.sender, e.subject, e.body, e.size, e.created_at
		FROM emails e JOIN email_recipients r ON r.email_id = e.id
		WHERE r.address = ? ORDER BY e.created_at DESC, e.id DESC`
	args := []any{storage.NormalizeAddress(address)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []emailRow
	if err := s.db.Select(&rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find by recipient: %w", err)
	}
	return s.attachRecipients(rows)
}

// RemoveMessage deletes a single message.
func (s *Store) RemoveMessage(id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return storage.ErrNotExist
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var found int64
	err = tx.Get(&found, tx.Rebind(`SELECT id FROM emails WHERE id = ?`), n)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotExist
	}
	if err != nil {
		return err
	}
	if err := deleteIDs(tx, []int64{n}); err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeOlderThan deletes every message dated before cutoff.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	var ids []int64
	err = tx.Select(&ids, tx.Rebind(`SELECT id FROM emails WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("select expired: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := deleteIDs(tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// attachRecipients loads the recipients of rows, preserving row order.
func (s *Store) attachRecipients(rows []emailRow) ([]storage.Message, error) {
	msgs := make([]storage.Message, len(rows))
	if len(rows) == 0 {
		return msgs, nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	query, args, err := sqlx.In(
		`SELECT email_id, address FROM email_recipients WHERE email_id IN (?) ORDER BY address`, ids)
	if err != nil {
		return nil, err
	}
	var rcpts []recipientRow
	if err := s.db.Select(&rcpts, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	byID := make(map[int64][]string, len(rows))
	for _, r := range rcpts {
		byID[r.EmailID] = append(byID[r.EmailID], r.Address)
	}
	for i, row := range rows {
		msgs[i] = &Message{row: row, recipients: byID[row.ID]}
	}
	return msgs, nil
}

// deleteIDs removes the listed emails and their recipient rows.
func deleteIDs(tx *sqlx.Tx, ids []int64) error {
	for _, stmt := range []string{
		`DELETE FROM email_recipients WHERE email_id IN (?)`,
		`DELETE FROM emails WHERE id IN (?)`,
	} {
		query, args, err := sqlx.In(stmt, ids)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("delete emails: %w", err)
		}
	}
	return nil
}
