package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id     TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	data   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	fit_score  REAL NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id        TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	domain    TEXT NOT NULL,
	name      TEXT NOT NULL,
	email     TEXT NOT NULL,
	title     TEXT NOT NULL,
	UNIQUE (domain, email)
);

CREATE TABLE IF NOT EXISTS facts (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	record_id    TEXT NOT NULL,
	source       TEXT NOT NULL,
	text         TEXT NOT NULL,
	collected_at DATETIME NOT NULL,
	ttl_hours    INTEGER NOT NULL,
	confidence   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS suppressions (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	expires_at DATETIME,
	UNIQUE (kind, value)
);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	record_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	recipient TEXT NOT NULL,
	subject   TEXT NOT NULL,
	body      TEXT NOT NULL,
	sent_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS handoffs (
	record_id    TEXT PRIMARY KEY,
	data         TEXT NOT NULL,
	generated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_contacts_domain ON contacts(domain);
CREATE INDEX IF NOT EXISTS idx_facts_company ON facts(company_id);
CREATE INDEX IF NOT EXISTS idx_messages_record ON messages(record_id);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, sent_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, r *model.Record) error {
	if r == nil || r.ID == "" {
		return eris.New("sqlite: record id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, company_id, status, fit_score, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, fit_score = excluded.fit_score, data = excluded.data, updated_at = excluded.updated_at`,
		r.ID, r.Company.ID, string(r.Status), r.FitScore, string(data), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert record %s", r.ID)
	}

	for _, c := range r.Contacts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO contacts (id, record_id, domain, name, email, title) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, r.ID, c.EmailDomain(), c.Name, c.NormalizedEmail(), c.Title,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert contact %s", c.ID)
		}
	}

	for _, f := range r.Facts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO facts (id, company_id, record_id, source, text, collected_at, ttl_hours, confidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.CompanyID, r.ID, f.Source, f.Text, f.CollectedAt.UTC(), f.TTLHours, f.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert fact %s", f.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	var r model.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE (? = '' OR status = ?) ORDER BY created_at, id LIMIT ? OFFSET ?`,
		string(filter.Status), string(filter.Status), limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var r model.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) SaveCompany(ctx context.Context, c model.Company) error {
	if c.ID == "" {
		return eris.New("sqlite: company id is required")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal company")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, domain, data) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET domain = excluded.domain, data = excluded.data`,
		c.ID, normalize(c.Domain), string(data),
	)
	return eris.Wrapf(err, "sqlite: save company %s", c.ID)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM companies WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: company %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	var c model.Company
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal company")
	}
	return &c, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		var c model.Company
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate companies")
}

func (s *SQLiteStore) ListContactsByDomain(ctx context.Context, domain string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, name, email, title FROM contacts WHERE domain = ? ORDER BY rowid`,
		normalize(domain),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contacts %s", domain)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &c.Email, &c.Title); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

func (s *SQLiteStore) ListFacts(ctx context.Context, companyID string) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, text, collected_at, ttl_hours, confidence, company_id FROM facts WHERE company_id = ? ORDER BY collected_at, id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list facts %s", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.ID, &f.Source, &f.Text, &f.CollectedAt, &f.TTLHours, &f.Confidence, &f.CompanyID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facts")
}

func (s *SQLiteStore) AddSuppression(ctx context.Context, sup model.Suppression) error {
	return s.upsertSuppression(ctx, s.db, sup)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsertSuppression(ctx context.Context, ex sqlExecer, sup model.Suppression) error {
	sup, err := prepareSuppression(sup)
	if err != nil {
		return err
	}
	var expires any
	if sup.ExpiresAt != nil {
		expires = sup.ExpiresAt.UTC()
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO suppressions (id, kind, value, reason, expires_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(kind, value) DO UPDATE SET reason = excluded.reason, expires_at = excluded.expires_at`,
		sup.ID, string(sup.Kind), sup.Value, sup.Reason, expires,
	)
	return eris.Wrapf(err, "sqlite: add suppression %s:%s", sup.Kind, sup.Value)
}

func (s *SQLiteStore) ImportSuppressions(ctx context.Context, list []model.Suppression) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, sup := range list {
		if err := s.upsertSuppression(ctx, tx, sup); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit suppressions")
	}
	return int64(len(list)), nil
}

func (s *SQLiteStore) ListSuppressions(ctx context.Context) ([]model.Suppression, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, value, reason, expires_at FROM suppressions ORDER BY kind, value`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suppressions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Suppression
	for rows.Next() {
		sup, err := scanSuppression(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sup)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate suppressions")
}

func (s *SQLiteStore) IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, value, reason, expires_at FROM suppressions WHERE kind = ? AND value = ?`,
		string(kind), normalize(value),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check suppression")
	}
	defer rows.Close() //nolint:errcheck

	now := time.Now()
	for rows.Next() {
		sup, err := scanSuppression(rows)
		if err != nil {
			return false, err
		}
		if sup.Active(now) {
			return true, nil
		}
	}
	return false, eris.Wrap(rows.Err(), "sqlite: iterate suppressions")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSuppression(row scannable) (*model.Suppression, error) {
	var sup model.Suppression
	var kind string
	var expires sql.NullTime
	if err := row.Scan(&sup.ID, &kind, &sup.Value, &sup.Reason, &expires); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan suppression")
	}
	sup.Kind = model.SuppressionKind(kind)
	if expires.Valid {
		t := expires.Time.UTC()
		sup.ExpiresAt = &t
	}
	return &sup, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, m model.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, record_id, direction, recipient, subject, body, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.RecordID, string(m.Direction), normalize(m.To), m.Subject, m.Body, m.SentAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save message %s", m.ID)
}

func (s *SQLiteStore) GetThread(ctx context.Context, recordID string) (*model.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, record_id, direction, recipient, subject, body, sent_at FROM messages WHERE record_id = ? ORDER BY sent_at, id`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get thread %s", recordID)
	}
	defer rows.Close() //nolint:errcheck

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var dir string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.RecordID, &dir, &m.To, &m.Subject, &m.Body, &m.SentAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.Direction = model.Direction(dir)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate messages")
	}
	return threadFromMessages(recordID, msgs), nil
}

func (s *SQLiteStore) LastTouch(ctx context.Context, email string) (time.Time, bool, error) {
	var sent time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_at FROM messages WHERE recipient = ? AND direction = ? ORDER BY sent_at DESC LIMIT 1`,
		normalize(email), string(model.DirectionOutbound),
	).Scan(&sent)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: last touch")
	}
	return sent, true, nil
}

func (s *SQLiteStore) SaveHandoff(ctx context.Context, h *model.Handoff) error {
	data, err := json.Marshal(h)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal handoff")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO handoffs (record_id, data, generated_at) VALUES (?, ?, ?)
ON CONFLICT(record_id) DO UPDATE SET data = excluded.data, generated_at = excluded.generated_at`,
		h.Record.ID, string(data), h.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save handoff %s", h.Record.ID)
}

func (s *SQLiteStore) GetHandoff(ctx context.Context, recordID string) (*model.Handoff, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM handoffs WHERE record_id = ?`, recordID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: handoff %s", recordID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get handoff %s", recordID)
	}
	var h model.Handoff
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal handoff")
	}
	return &h, nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	for _, table := range []string{"records", "contacts", "facts", "messages", "handoffs", "companies"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}
	return nil
}
