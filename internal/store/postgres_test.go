package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS companies`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := testRecord()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO records .*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("rec-1", "acme", "scored", 0.72, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO contacts .* ON CONFLICT DO NOTHING`).
		WithArgs("c1", "rec-1", "acme.com", "Jane Doe", "jane.doe@acme.com", "VP Customer Experience").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO facts .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("f1", "acme", "rec-1", "https://acme.com", "Acme ships support tooling", pgxmock.AnyArg(), 168, 0.7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRecord(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := testRecord()
	r.Facts = nil

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs("c1", "rec-1", "acme.com", "Jane Doe", "jane.doe@acme.com", "VP Customer Experience").
		WillReturnError(eris.New("boom"))
	mock.ExpectRollback()

	err := s.SaveRecord(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert contact c1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	data, err := json.Marshal(testRecord())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM records WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Company.Name)
	assert.Len(t, got.Contacts, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords_Paged(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	data, err := json.Marshal(testRecord())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM records .* LIMIT \$2 OFFSET \$3`).
		WithArgs("scored", 10, 5).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	list, err := s.ListRecords(context.Background(), RecordFilter{Status: model.StatusScored, Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsSuppressed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	mock.ExpectQuery(`SELECT expires_at FROM suppressions WHERE kind = \$1 AND value = \$2`).
		WithArgs("email", "jane@acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"expires_at"}).AddRow(&past))
	mock.ExpectQuery(`SELECT expires_at FROM suppressions`).
		WithArgs("domain", "acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"expires_at"}).AddRow(&future))

	ok, err := s.IsSuppressed(context.Background(), model.SuppressEmail, " Jane@Acme.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsSuppressed(context.Background(), model.SuppressDomain, "acme.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportSuppressions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE suppressions_import`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"suppressions_import"}, suppressionColumns).WillReturnResult(2)
	mock.ExpectExec(`(?s)INSERT INTO suppressions .*SELECT DISTINCT ON \(kind, value\)`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.ImportSuppressions(context.Background(), []model.Suppression{
		{Kind: model.SuppressDomain, Value: "a.com"},
		{Kind: model.SuppressEmail, Value: "b@b.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportSuppressions_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.ImportSuppressions(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastTouch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT sent_at FROM messages WHERE recipient = \$1 AND direction = \$2`).
		WithArgs("jane@acme.com", "outbound").
		WillReturnRows(pgxmock.NewRows([]string{"sent_at"}).AddRow(sent))
	mock.ExpectQuery(`SELECT sent_at FROM messages`).
		WithArgs("nobody@acme.com", "outbound").
		WillReturnError(pgx.ErrNoRows)

	got, ok, err := s.LastTouch(context.Background(), "Jane@acme.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sent, got)

	_, ok, err = s.LastTouch(context.Background(), "nobody@acme.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetHandoff_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM handoffs WHERE record_id = \$1`).
		WithArgs("rec-9").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetHandoff(context.Background(), "rec-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`TRUNCATE records, contacts, facts, messages, handoffs, companies`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	require.NoError(t, s.ClearAll(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
