package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/db"
	"github.com/sells-group/competitor-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS competitors (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	website    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitor_fields (
	entity_id  TEXT NOT NULL REFERENCES competitors(id),
	field_name TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, field_name)
);

CREATE TABLE IF NOT EXISTS data_sources (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_id         TEXT NOT NULL REFERENCES competitors(id),
	field_name        TEXT NOT NULL,
	current_value     TEXT NOT NULL DEFAULT '',
	previous_value    TEXT NOT NULL DEFAULT '',
	source_type       TEXT NOT NULL,
	source_url        TEXT NOT NULL DEFAULT '',
	source_name       TEXT NOT NULL DEFAULT '',
	confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_level  TEXT NOT NULL DEFAULT 'low',
	is_verified       BOOLEAN NOT NULL DEFAULT false,
	verified_by       TEXT NOT NULL DEFAULT '',
	verification_date TIMESTAMPTZ,
	extraction_method TEXT NOT NULL DEFAULT '',
	extracted_at      TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (entity_id, field_name)
);

CREATE TABLE IF NOT EXISTS change_log (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_id      TEXT NOT NULL,
	entity_name    TEXT NOT NULL DEFAULT '',
	field_name     TEXT NOT NULL,
	previous_value TEXT NOT NULL DEFAULT '',
	new_value      TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL,
	detected_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS kb_extractions (
	id           TEXT PRIMARY KEY,
	entity_id    TEXT NOT NULL,
	field_name   TEXT NOT NULL,
	value        TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	document_id  TEXT NOT NULL DEFAULT '',
	chunk_id     TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	source_name  TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_verified  BOOLEAN NOT NULL DEFAULT false,
	data_as_of   TIMESTAMPTZ,
	extracted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_data_sources_entity ON data_sources(entity_id);
CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_kb_extractions_entity ON kb_extractions(entity_id, field_name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) UpsertCompetitor(ctx context.Context, c *model.Competitor) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitors (id, name, website, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, website = EXCLUDED.website, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.Website, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert competitor %s", c.ID)
}

func (s *PostgresStore) GetCompetitor(ctx context.Context, id string) (*model.Competitor, error) {
	var c model.Competitor
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, website, created_at, updated_at FROM competitors WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Website, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: competitor %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get competitor %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, website, created_at, updated_at FROM competitors ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list competitors")
	}
	defer rows.Close()

	var out []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.Name, &c.Website, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate competitors")
}

func (s *PostgresStore) GetFieldValues(ctx context.Context, entityID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field_name, value FROM competitor_fields WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get field values %s", entityID)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan field value")
		}
		out[k] = v
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate field values")
}

// pgExecer is satisfied by both the pool and a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) SetFieldValue(ctx context.Context, entityID, field, value string) error {
	return s.setFieldValue(ctx, s.pool, entityID, field, value)
}

func (s *PostgresStore) setFieldValue(ctx context.Context, ex pgExecer, entityID, field, value string) error {
	_, err := ex.Exec(ctx,
		`INSERT INTO competitor_fields (entity_id, field_name, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_id, field_name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		entityID, field, value, s.now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set field %s.%s", entityID, field)
}

const pgDataSourceCols = `id, entity_id, field_name, current_value, previous_value, source_type, source_url,
	source_name, confidence_score, confidence_level, is_verified, verified_by, verification_date,
	extraction_method, extracted_at, updated_at`

func (s *PostgresStore) GetDataSource(ctx context.Context, entityID, field string) (*model.DataSourceRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgDataSourceCols+` FROM data_sources WHERE entity_id = $1 AND field_name = $2`,
		entityID, field,
	)
	r, err := scanPGDataSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get data source %s.%s", entityID, field)
	}
	return r, nil
}

func (s *PostgresStore) ListDataSources(ctx context.Context, entityID string) ([]model.DataSourceRow, error) {
	query := `SELECT ` + pgDataSourceCols + ` FROM data_sources`
	var args []any
	if entityID != AllEntities {
		query += ` WHERE entity_id = $1`
		args = append(args, entityID)
	}
	query += ` ORDER BY entity_id, field_name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list data sources")
	}
	defer rows.Close()

	var out []model.DataSourceRow
	for rows.Next() {
		r, err := scanPGDataSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan data source")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate data sources")
}

func (s *PostgresStore) UpsertDataSource(ctx context.Context, row *model.DataSourceRow) error {
	return s.upsertDataSource(ctx, s.pool, row)
}

func (s *PostgresStore) upsertDataSource(ctx context.Context, ex pgExecer, r *model.DataSourceRow) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.UpdatedAt = s.now().UTC()
	_, err := ex.Exec(ctx,
		`INSERT INTO data_sources (`+pgDataSourceCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (entity_id, field_name) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			previous_value = EXCLUDED.previous_value,
			source_type = EXCLUDED.source_type,
			source_url = EXCLUDED.source_url,
			source_name = EXCLUDED.source_name,
			confidence_score = EXCLUDED.confidence_score,
			confidence_level = EXCLUDED.confidence_level,
			is_verified = EXCLUDED.is_verified,
			verified_by = EXCLUDED.verified_by,
			verification_date = EXCLUDED.verification_date,
			extraction_method = EXCLUDED.extraction_method,
			extracted_at = EXCLUDED.extracted_at,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.EntityID, r.FieldName, r.CurrentValue, r.PreviousValue, string(r.SourceType), r.SourceURL,
		r.SourceName, r.ConfidenceScore, string(r.ConfidenceLevel), r.IsVerified, r.VerifiedBy,
		r.VerificationDate, r.ExtractionMethod, r.ExtractedAt, r.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert data source %s.%s", r.EntityID, r.FieldName)
}

func (s *PostgresStore) AppendChangeLog(ctx context.Context, e *model.ChangeLogEntry) error {
	return s.appendChangeLog(ctx, s.pool, e)
}

func (s *PostgresStore) appendChangeLog(ctx context.Context, ex pgExecer, e *model.ChangeLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = s.now().UTC()
	}
	_, err := ex.Exec(ctx,
		`INSERT INTO change_log (id, entity_id, entity_name, field_name, previous_value, new_value, source, severity, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.EntityID, e.EntityName, e.FieldName, e.PreviousValue, e.NewValue, e.Source,
		string(e.Severity), e.DetectedAt,
	)
	return eris.Wrapf(err, "postgres: append change log %s.%s", e.EntityID, e.FieldName)
}

func (s *PostgresStore) ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, entity_name, field_name, previous_value, new_value, source, severity, detected_at
		 FROM change_log WHERE entity_id = $1 ORDER BY detected_at, id`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list change log %s", entityID)
	}
	defer rows.Close()

	var out []model.ChangeLogEntry
	for rows.Next() {
		var e model.ChangeLogEntry
		var sev string
		if err := rows.Scan(&e.ID, &e.EntityID, &e.EntityName, &e.FieldName, &e.PreviousValue,
			&e.NewValue, &e.Source, &sev, &e.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change log")
		}
		e.Severity = model.Severity(sev)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate change log")
}

func (s *PostgresStore) ApplyCorrection(ctx context.Context, c *model.Correction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin correction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if c.LiveValue != nil {
		if err := s.setFieldValue(ctx, tx, c.EntityID, c.FieldName, *c.LiveValue); err != nil {
			return err
		}
	}
	c.Source.EntityID, c.Source.FieldName = c.EntityID, c.FieldName
	if err := s.upsertDataSource(ctx, tx, &c.Source); err != nil {
		return err
	}
	if c.ChangeLog != nil {
		if err := s.appendChangeLog(ctx, tx, c.ChangeLog); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit correction")
}

var kbExtractionCols = []string{
	"id", "entity_id", "field_name", "value", "source_type", "document_id", "chunk_id",
	"source_url", "source_name", "confidence", "is_verified", "data_as_of", "extracted_at",
}

// InsertKBExtractions bulk-loads extractions; re-imported ids overwrite.
func (s *PostgresStore) InsertKBExtractions(ctx context.Context, entityID string, recs []model.SourceRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for i := range recs {
		r := &recs[i]
		if r.SourceID == "" {
			r.SourceID = uuid.New().String()
		}
		rows = append(rows, []any{
			r.SourceID, entityID, r.Field, r.Value, string(r.SourceType), r.DocumentID, r.ChunkID,
			r.SourceURL, r.SourceName, r.Confidence, r.IsVerified, r.DataAsOf, r.ExtractedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "kb_extractions",
		Columns:      kbExtractionCols,
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrapf(err, "postgres: import kb extractions %s", entityID)
}

func (s *PostgresStore) ListKBExtractions(ctx context.Context, entityID string) ([]model.SourceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, field_name, value, source_type, document_id, chunk_id, source_url, source_name,
			confidence, is_verified, data_as_of, extracted_at
		 FROM kb_extractions WHERE entity_id = $1 ORDER BY field_name, id`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list kb extractions %s", entityID)
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var st string
		if err := rows.Scan(&r.SourceID, &r.Field, &r.Value, &st, &r.DocumentID, &r.ChunkID, &r.SourceURL,
			&r.SourceName, &r.Confidence, &r.IsVerified, &r.DataAsOf, &r.ExtractedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kb extraction")
		}
		r.SourceType = model.ParseSourceType(st)
		r.Origin = model.OriginKB
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate kb extractions")
}

func scanPGDataSource(row pgx.Row) (*model.DataSourceRow, error) {
	var r model.DataSourceRow
	var st, level string
	if err := row.Scan(&r.ID, &r.EntityID, &r.FieldName, &r.CurrentValue, &r.PreviousValue, &st, &r.SourceURL,
		&r.SourceName, &r.ConfidenceScore, &level, &r.IsVerified, &r.VerifiedBy, &r.VerificationDate,
		&r.ExtractionMethod, &r.ExtractedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.SourceType = model.ParseSourceType(st)
	r.ConfidenceLevel = model.ConfidenceLevel(level)
	return &r, nil
}
