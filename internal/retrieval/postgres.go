package retrieval

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/db"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresBackend stores embeddings in a pgvector table.
type PostgresBackend struct {
	pool    db.Pool
	table   string
	closeFn func()
}

// PostgresOptions configures the pgvector backend.
type PostgresOptions struct {
	Schema string
	Table  string
	Pool   *db.PoolConfig
}

// NewPostgres connects to Postgres and prepares the embeddings table.
func NewPostgres(ctx context.Context, connString string, opts PostgresOptions) (*PostgresBackend, error) {
	table, err := qualifiedTable(opts.Schema, opts.Table)
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, connString, opts.Pool, nil)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: open postgres")
	}
	b := &PostgresBackend{pool: pool, table: table, closeFn: pool.Close}
	if err := b.Migrate(ctx, opts.Schema); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func qualifiedTable(schema, table string) (string, error) {
	if schema == "" {
		schema = "public"
	}
	if table == "" {
		table = "embeddings"
	}
	if !identRe.MatchString(schema) || !identRe.MatchString(table) {
		return "", eris.Errorf("retrieval: invalid table name %s.%s", schema, table)
	}
	return schema + "." + table, nil
}

// Migrate creates the vector extension, schema, table and namespace index.
func (b *PostgresBackend) Migrate(ctx context.Context, schema string) error {
	if schema == "" {
		schema = "public"
	}
	name := b.table[strings.Index(b.table, ".")+1:]
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + b.table + ` (
	id         BIGSERIAL PRIMARY KEY,
	namespace  TEXT NOT NULL,
	reference  TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  vector NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (namespace, reference)
)`,
		`CREATE INDEX IF NOT EXISTS ` + name + `_namespace_idx ON ` + b.table + ` (namespace)`,
	}
	for _, s := range stmts {
		if _, err := b.pool.Exec(ctx, s); err != nil {
			return eris.Wrap(err, "retrieval: migrate postgres")
		}
	}
	return nil
}

// vectorLiteral renders v in pgvector's text input format.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// dimensionOf returns the stored dimension of another entry in the namespace,
// or 0 when there is none.
func (b *PostgresBackend) dimensionOf(ctx context.Context, namespace, exclude string) (int, error) {
	var dim int
	err := b.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(vector_dims(embedding)), 0) FROM `+b.table+` WHERE namespace = $1 AND reference <> $2`,
		namespace, exclude,
	).Scan(&dim)
	if err != nil {
		return 0, eris.Wrap(err, "retrieval: read dimension")
	}
	return dim, nil
}

func (b *PostgresBackend) Upsert(ctx context.Context, namespace, reference, text string, vector []float32) error {
	if err := validate(namespace, reference); err != nil {
		return err
	}
	defer observe("postgres", "upsert")

	dim, err := b.dimensionOf(ctx, namespace, reference)
	if err != nil {
		return err
	}
	if dim != 0 && dim != len(vector) {
		return eris.Wrapf(ErrDimensionMismatch, "retrieval: upsert %s into %s", reference, namespace)
	}

	_, err = b.pool.Exec(ctx,
		`INSERT INTO `+b.table+` (namespace, reference, content, embedding)
VALUES ($1, $2, $3, $4::vector)
ON CONFLICT (namespace, reference) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, updated_at = now()`,
		namespace, reference, text, vectorLiteral(vector),
	)
	if err != nil {
		return eris.Wrapf(err, "retrieval: upsert %s", reference)
	}
	return nil
}

func (b *PostgresBackend) Search(ctx context.Context, namespace string, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	defer observe("postgres", "search")

	// pgvector yields NaN for a zero-norm operand; such pairs score 0.
	rows, err := b.pool.Query(ctx,
		`SELECT reference, content,
	CASE WHEN vector_norm(embedding) = 0 OR vector_norm($1::vector) = 0 THEN 0
	     ELSE 1 - (embedding <=> $1::vector) END AS score
FROM `+b.table+`
WHERE namespace = $2
ORDER BY score DESC, reference ASC
LIMIT $3`,
		vectorLiteral(query), namespace, topK,
	)
	if err != nil {
		return nil, mapVectorErr(err, namespace)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Reference, &h.Text, &h.Score); err != nil {
			return nil, eris.Wrap(err, "retrieval: scan hit")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, mapVectorErr(err, namespace)
	}
	zap.L().Debug("retrieval: postgres search",
		zap.String("namespace", namespace),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// mapVectorErr translates pgvector's dimension error into ErrDimensionMismatch.
func mapVectorErr(err error, namespace string) error {
	var pgErr *pgconn.PgError
	if eris.As(err, &pgErr) && strings.Contains(pgErr.Message, "different vector dimensions") {
		return eris.Wrapf(ErrDimensionMismatch, "retrieval: search %s: %s", namespace, pgErr.Message)
	}
	return eris.Wrapf(err, "retrieval: search %s", namespace)
}

func (b *PostgresBackend) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	defer observe("postgres", "clear")

	tag, err := b.pool.Exec(ctx, `DELETE FROM `+b.table+` WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, eris.Wrapf(err, "retrieval: clear %s", namespace)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error {
	if b.closeFn != nil {
		b.closeFn()
	}
	return nil
}
