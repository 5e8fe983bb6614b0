package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

const (
	sqlUpsertRecord = `INSERT INTO records (id, company_id, status, fit_score, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, fit_score = EXCLUDED.fit_score, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	sqlInsertContact = `INSERT INTO contacts (id, record_id, domain, name, email, title) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
	sqlInsertFact    = `INSERT INTO facts (id, company_id, record_id, source, text, collected_at, ttl_hours, confidence) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`
	sqlGetRecord     = `SELECT data FROM records WHERE id = $1`
	sqlIsSuppressed  = `SELECT expires_at FROM suppressions WHERE kind = $1 AND value = $2`
	sqlLastTouch     = `SELECT sent_at FROM messages WHERE recipient = $1 AND direction = $2 ORDER BY sent_at DESC LIMIT 1`
	sqlInsertMessage = `INSERT INTO messages (id, thread_id, record_id, direction, recipient, subject, body, sent_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// preparedStatements lists queries to prepare on each new connection for
// the store operations every pipeline run hits.
var preparedStatements = map[string]string{
	"upsert_record":  sqlUpsertRecord,
	"insert_contact": sqlInsertContact,
	"insert_fact":    sqlInsertFact,
	"get_record":     sqlGetRecord,
	"is_suppressed":  sqlIsSuppressed,
	"last_touch":     sqlLastTouch,
	"insert_message": sqlInsertMessage,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg, db.PrepareAll(preparedStatements))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open store")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id     TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	data   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	fit_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	collected_at TIMESTAMPTZ NOT NULL,
	ttl_hours    INTEGER NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS suppressions (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ,
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
	sent_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS handoffs (
	record_id    TEXT PRIMARY KEY,
	data         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_contacts_domain ON contacts(domain);
CREATE INDEX IF NOT EXISTS idx_facts_company ON facts(company_id);
CREATE INDEX IF NOT EXISTS idx_messages_record ON messages(record_id);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, sent_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveRecord(ctx context.Context, r *model.Record) error {
	if r == nil || r.ID == "" {
		return eris.New("postgres: record id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}
	now := time.Now().UTC()

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlUpsertRecord, r.ID, r.Company.ID, string(r.Status), r.FitScore, data, now); err != nil {
			return eris.Wrapf(err, "postgres: upsert record %s", r.ID)
		}
		for _, c := range r.Contacts {
			if _, err := tx.Exec(ctx, sqlInsertContact, c.ID, r.ID, c.EmailDomain(), c.Name, c.NormalizedEmail(), c.Title); err != nil {
				return eris.Wrapf(err, "postgres: insert contact %s", c.ID)
			}
		}
		for _, f := range r.Facts {
			if _, err := tx.Exec(ctx, sqlInsertFact, f.ID, f.CompanyID, r.ID, f.Source, f.Text, f.CollectedAt.UTC(), f.TTLHours, f.Confidence); err != nil {
				return eris.Wrapf(err, "postgres: insert fact %s", f.ID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlGetRecord, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	var r model.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &r, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := `SELECT data FROM records WHERE ($1 = '' OR status = $1) ORDER BY created_at, id`
	args := []any{string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += ` OFFSET $2`
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r model.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) SaveCompany(ctx context.Context, c model.Company) error {
	if c.ID == "" {
		return eris.New("postgres: company id is required")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal company")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, domain, data) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET domain = EXCLUDED.domain, data = EXCLUDED.data`,
		c.ID, normalize(c.Domain), data,
	)
	return eris.Wrapf(err, "postgres: save company %s", c.ID)
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM companies WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: company %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	var c model.Company
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal company")
	}
	return &c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		var c model.Company
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

func (s *PostgresStore) ListContactsByDomain(ctx context.Context, domain string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, name, email, title FROM contacts WHERE domain = $1 ORDER BY id`,
		normalize(domain),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts %s", domain)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Name, &c.Email, &c.Title); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *PostgresStore) ListFacts(ctx context.Context, companyID string) ([]model.Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, text, collected_at, ttl_hours, confidence, company_id FROM facts WHERE company_id = $1 ORDER BY collected_at, id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list facts %s", companyID)
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.ID, &f.Source, &f.Text, &f.CollectedAt, &f.TTLHours, &f.Confidence, &f.CompanyID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facts")
}

func (s *PostgresStore) AddSuppression(ctx context.Context, sup model.Suppression) error {
	sup, err := prepareSuppression(sup)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO suppressions (id, kind, value, reason, expires_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (kind, value) DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at`,
		sup.ID, string(sup.Kind), sup.Value, sup.Reason, sup.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: add suppression %s:%s", sup.Kind, sup.Value)
}

var suppressionColumns = []string{"id", "kind", "value", "reason", "expires_at"}

// ImportSuppressions bulk-loads a suppression list through a staging table
// so that existing entries are updated rather than rejected.
func (s *PostgresStore) ImportSuppressions(ctx context.Context, list []model.Suppression) (int64, error) {
	rows := make([][]any, 0, len(list))
	for _, sup := range list {
		sup, err := prepareSuppression(sup)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{sup.ID, string(sup.Kind), sup.Value, sup.Reason, sup.ExpiresAt})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var n int64
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE TEMP TABLE suppressions_import (LIKE suppressions INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
			return eris.Wrap(err, "postgres: create staging table")
		}
		copied, err := db.CopyFrom(ctx, tx, "suppressions_import", suppressionColumns, rows)
		if err != nil {
			return err
		}
		n = copied
		_, err = tx.Exec(ctx,
			`INSERT INTO suppressions (id, kind, value, reason, expires_at)
SELECT DISTINCT ON (kind, value) id, kind, value, reason, expires_at FROM suppressions_import
ON CONFLICT (kind, value) DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at`)
		return eris.Wrap(err, "postgres: merge suppressions")
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) ListSuppressions(ctx context.Context) ([]model.Suppression, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, value, reason, expires_at FROM suppressions ORDER BY kind, value`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suppressions")
	}
	defer rows.Close()

	var out []model.Suppression
	for rows.Next() {
		var sup model.Suppression
		var kind string
		if err := rows.Scan(&sup.ID, &kind, &sup.Value, &sup.Reason, &sup.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suppression")
		}
		sup.Kind = model.SuppressionKind(kind)
		out = append(out, sup)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate suppressions")
}

func (s *PostgresStore) IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error) {
	rows, err := s.pool.Query(ctx, sqlIsSuppressed, string(kind), normalize(value))
	if err != nil {
		return false, eris.Wrap(err, "postgres: check suppression")
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var expires *time.Time
		if err := rows.Scan(&expires); err != nil {
			return false, eris.Wrap(err, "postgres: scan suppression")
		}
		if (model.Suppression{ExpiresAt: expires}).Active(now) {
			return true, nil
		}
	}
	return false, eris.Wrap(rows.Err(), "postgres: iterate suppressions")
}

func (s *PostgresStore) SaveMessage(ctx context.Context, m model.Message) error {
	_, err := s.pool.Exec(ctx, sqlInsertMessage,
		m.ID, m.ThreadID, m.RecordID, string(m.Direction), normalize(m.To), m.Subject, m.Body, m.SentAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save message %s", m.ID)
}

func (s *PostgresStore) GetThread(ctx context.Context, recordID string) (*model.Thread, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, record_id, direction, recipient, subject, body, sent_at FROM messages WHERE record_id = $1 ORDER BY sent_at, id`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get thread %s", recordID)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var dir string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.RecordID, &dir, &m.To, &m.Subject, &m.Body, &m.SentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		m.Direction = model.Direction(dir)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate messages")
	}
	return threadFromMessages(recordID, msgs), nil
}

func (s *PostgresStore) LastTouch(ctx context.Context, email string) (time.Time, bool, error) {
	var sent time.Time
	err := s.pool.QueryRow(ctx, sqlLastTouch, normalize(email), string(model.DirectionOutbound)).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: last touch")
	}
	return sent, true, nil
}

func (s *PostgresStore) SaveHandoff(ctx context.Context, h *model.Handoff) error {
	data, err := json.Marshal(h)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal handoff")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO handoffs (record_id, data, generated_at) VALUES ($1, $2, $3)
ON CONFLICT (record_id) DO UPDATE SET data = EXCLUDED.data, generated_at = EXCLUDED.generated_at`,
		h.Record.ID, data, h.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save handoff %s", h.Record.ID)
}

func (s *PostgresStore) GetHandoff(ctx context.Context, recordID string) (*model.Handoff, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM handoffs WHERE record_id = $1`, recordID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: handoff %s", recordID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get handoff %s", recordID)
	}
	var h model.Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal handoff")
	}
	return &h, nil
}

func (s *PostgresStore) ClearAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE records, contacts, facts, messages, handoffs, companies`)
	return eris.Wrap(err, "postgres: clear")
}
