package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/competitor-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Foreign keys and the busy timeout are per-connection, so they ride on the DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Times are stored as RFC 3339 text so nullable columns round-trip exactly.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS competitors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	website    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_fields (
	entity_id  TEXT NOT NULL REFERENCES competitors(id),
	field_name TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (entity_id, field_name)
);

CREATE TABLE IF NOT EXISTS data_sources (
	id                TEXT PRIMARY KEY,
	entity_id         TEXT NOT NULL REFERENCES competitors(id),
	field_name        TEXT NOT NULL,
	current_value     TEXT NOT NULL DEFAULT '',
	previous_value    TEXT NOT NULL DEFAULT '',
	source_type       TEXT NOT NULL,
	source_url        TEXT NOT NULL DEFAULT '',
	source_name       TEXT NOT NULL DEFAULT '',
	confidence_score  REAL NOT NULL DEFAULT 0,
	confidence_level  TEXT NOT NULL DEFAULT 'low',
	is_verified       INTEGER NOT NULL DEFAULT 0,
	verified_by       TEXT NOT NULL DEFAULT '',
	verification_date TEXT,
	extraction_method TEXT NOT NULL DEFAULT '',
	extracted_at      TEXT,
	updated_at        TEXT NOT NULL,
	UNIQUE (entity_id, field_name)
);

CREATE TABLE IF NOT EXISTS change_log (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL,
	entity_name    TEXT NOT NULL DEFAULT '',
	field_name     TEXT NOT NULL,
	previous_value TEXT NOT NULL DEFAULT '',
	new_value      TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL,
	detected_at    TEXT NOT NULL
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
	confidence   REAL NOT NULL DEFAULT 0,
	is_verified  INTEGER NOT NULL DEFAULT 0,
	data_as_of   TEXT,
	extracted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_data_sources_entity ON data_sources(entity_id);
CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_kb_extractions_entity ON kb_extractions(entity_id, field_name);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCompetitor(ctx context.Context, c *model.Competitor) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitors (id, name, website, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, website = excluded.website, updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Website, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert competitor %s", c.ID)
}

func (s *SQLiteStore) GetCompetitor(ctx context.Context, id string) (*model.Competitor, error) {
	var c model.Competitor
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, website, created_at, updated_at FROM competitors WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Website, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: competitor %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get competitor %s", id)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func (s *SQLiteStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, website, created_at, updated_at FROM competitors ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list competitors")
	}
	defer rows.Close()

	var out []model.Competitor
	for rows.Next() {
		var c model.Competitor
		var created, updated string
		if err := rows.Scan(&c.ID, &c.Name, &c.Website, &created, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor")
		}
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate competitors")
}

func (s *SQLiteStore) GetFieldValues(ctx context.Context, entityID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_name, value FROM competitor_fields WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get field values %s", entityID)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field value")
		}
		out[k] = v
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate field values")
}

func (s *SQLiteStore) SetFieldValue(ctx context.Context, entityID, field, value string) error {
	return s.setFieldValue(ctx, s.db, entityID, field, value)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) setFieldValue(ctx context.Context, ex sqlExecer, entityID, field, value string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO competitor_fields (entity_id, field_name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (entity_id, field_name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		entityID, field, value, fmtTime(s.now().UTC()),
	)
	return eris.Wrapf(err, "sqlite: set field %s.%s", entityID, field)
}

const sqliteDataSourceCols = `id, entity_id, field_name, current_value, previous_value, source_type, source_url,
	source_name, confidence_score, confidence_level, is_verified, verified_by, verification_date,
	extraction_method, extracted_at, updated_at`

func (s *SQLiteStore) GetDataSource(ctx context.Context, entityID, field string) (*model.DataSourceRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDataSourceCols+` FROM data_sources WHERE entity_id = ? AND field_name = ?`,
		entityID, field,
	)
	r, err := scanSQLiteDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get data source %s.%s", entityID, field)
	}
	return r, nil
}

func (s *SQLiteStore) ListDataSources(ctx context.Context, entityID string) ([]model.DataSourceRow, error) {
	query := `SELECT ` + sqliteDataSourceCols + ` FROM data_sources`
	var args []any
	if entityID != AllEntities {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY entity_id, field_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list data sources")
	}
	defer rows.Close()

	var out []model.DataSourceRow
	for rows.Next() {
		r, err := scanSQLiteDataSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan data source")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate data sources")
}

func (s *SQLiteStore) UpsertDataSource(ctx context.Context, row *model.DataSourceRow) error {
	return s.upsertDataSource(ctx, s.db, row)
}

func (s *SQLiteStore) upsertDataSource(ctx context.Context, ex sqlExecer, r *model.DataSourceRow) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.UpdatedAt = s.now().UTC()
	_, err := ex.ExecContext(ctx,
		`INSERT INTO data_sources (`+sqliteDataSourceCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_id, field_name) DO UPDATE SET
			current_value = excluded.current_value,
			previous_value = excluded.previous_value,
			source_type = excluded.source_type,
			source_url = excluded.source_url,
			source_name = excluded.source_name,
			confidence_score = excluded.confidence_score,
			confidence_level = excluded.confidence_level,
			is_verified = excluded.is_verified,
			verified_by = excluded.verified_by,
			verification_date = excluded.verification_date,
			extraction_method = excluded.extraction_method,
			extracted_at = excluded.extracted_at,
			updated_at = excluded.updated_at`,
		r.ID, r.EntityID, r.FieldName, r.CurrentValue, r.PreviousValue, string(r.SourceType), r.SourceURL,
		r.SourceName, r.ConfidenceScore, string(r.ConfidenceLevel), r.IsVerified, r.VerifiedBy,
		fmtTimePtr(r.VerificationDate), r.ExtractionMethod, fmtTimePtr(r.ExtractedAt), fmtTime(r.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert data source %s.%s", r.EntityID, r.FieldName)
}

func (s *SQLiteStore) AppendChangeLog(ctx context.Context, e *model.ChangeLogEntry) error {
	return s.appendChangeLog(ctx, s.db, e)
}

func (s *SQLiteStore) appendChangeLog(ctx context.Context, ex sqlExecer, e *model.ChangeLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = s.now().UTC()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO change_log (id, entity_id, entity_name, field_name, previous_value, new_value, source, severity, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityID, e.EntityName, e.FieldName, e.PreviousValue, e.NewValue, e.Source,
		string(e.Severity), fmtTime(e.DetectedAt),
	)
	return eris.Wrapf(err, "sqlite: append change log %s.%s", e.EntityID, e.FieldName)
}

func (s *SQLiteStore) ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, entity_name, field_name, previous_value, new_value, source, severity, detected_at
		 FROM change_log WHERE entity_id = ? ORDER BY detected_at, id`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list change log %s", entityID)
	}
	defer rows.Close()

	var out []model.ChangeLogEntry
	for rows.Next() {
		var e model.ChangeLogEntry
		var sev, detected string
		if err := rows.Scan(&e.ID, &e.EntityID, &e.EntityName, &e.FieldName, &e.PreviousValue,
			&e.NewValue, &e.Source, &sev, &detected); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change log")
		}
		e.Severity = model.Severity(sev)
		e.DetectedAt = parseTime(detected)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate change log")
}

func (s *SQLiteStore) ApplyCorrection(ctx context.Context, c *model.Correction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin correction")
	}
	defer tx.Rollback() //nolint:errcheck

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
	return eris.Wrap(tx.Commit(), "sqlite: commit correction")
}

func (s *SQLiteStore) InsertKBExtractions(ctx context.Context, entityID string, recs []model.SourceRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin kb import")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range recs {
		r := &recs[i]
		if r.SourceID == "" {
			r.SourceID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO kb_extractions (id, entity_id, field_name, value, source_type, document_id,
				chunk_id, source_url, source_name, confidence, is_verified, data_as_of, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SourceID, entityID, r.Field, r.Value, string(r.SourceType), r.DocumentID, r.ChunkID,
			r.SourceURL, r.SourceName, r.Confidence, r.IsVerified, fmtTimePtr(r.DataAsOf), fmtTimePtr(r.ExtractedAt),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert kb extraction %s", r.SourceID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit kb import")
	}
	return int64(len(recs)), nil
}

func (s *SQLiteStore) ListKBExtractions(ctx context.Context, entityID string) ([]model.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, field_name, value, source_type, document_id, chunk_id, source_url, source_name,
			confidence, is_verified, data_as_of, extracted_at
		 FROM kb_extractions WHERE entity_id = ? ORDER BY field_name, id`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list kb extractions %s", entityID)
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var st string
		var asOf, extracted sql.NullString
		if err := rows.Scan(&r.SourceID, &r.Field, &r.Value, &st, &r.DocumentID, &r.ChunkID, &r.SourceURL,
			&r.SourceName, &r.Confidence, &r.IsVerified, &asOf, &extracted); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kb extraction")
		}
		r.SourceType = model.ParseSourceType(st)
		r.Origin = model.OriginKB
		r.DataAsOf = parseNullTime(asOf)
		r.ExtractedAt = parseNullTime(extracted)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate kb extractions")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteDataSource(row scannable) (*model.DataSourceRow, error) {
	var r model.DataSourceRow
	var st, level, updated string
	var verifiedAt, extracted sql.NullString
	if err := row.Scan(&r.ID, &r.EntityID, &r.FieldName, &r.CurrentValue, &r.PreviousValue, &st, &r.SourceURL,
		&r.SourceName, &r.ConfidenceScore, &level, &r.IsVerified, &r.VerifiedBy, &verifiedAt,
		&r.ExtractionMethod, &extracted, &updated); err != nil {
		return nil, err
	}
	r.SourceType = model.ParseSourceType(st)
	r.ConfidenceLevel = model.ConfidenceLevel(level)
	r.VerificationDate = parseNullTime(verifiedAt)
	r.ExtractedAt = parseNullTime(extracted)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
