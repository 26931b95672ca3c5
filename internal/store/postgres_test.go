package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s := &PostgresStore{pool: mock, now: func() time.Time { return fixed }}
	return s, mock
}

var dataSourceColumns = []string{
	"id", "entity_id", "field_name", "current_value", "previous_value", "source_type", "source_url",
	"source_name", "confidence_score", "confidence_level", "is_verified", "verified_by", "verification_date",
	"extraction_method", "extracted_at", "updated_at",
}

func TestPostgresStore_GetCompetitor_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, website, created_at, updated_at FROM competitors WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCompetitor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDataSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	updated := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM data_sources WHERE entity_id = \$1 AND field_name = \$2`).
		WithArgs("c1", "ceo").
		WillReturnRows(pgxmock.NewRows(dataSourceColumns).AddRow(
			"ds-1", "c1", "ceo", "Jane Doe", "", "linkedin", "https://linkedin.com/company/acme",
			"LinkedIn", 45.0, "moderate", false, "", nil, "auto_discovery", nil, updated,
		))

	row, err := s.GetDataSource(context.Background(), "c1", "ceo")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, model.SourceLinkedIn, row.SourceType)
	assert.Equal(t, model.ConfidenceModerate, row.ConfidenceLevel)
	assert.Nil(t, row.VerificationDate)
	assert.True(t, row.HasSource())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDataSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM data_sources WHERE entity_id`).
		WithArgs("c1", "ceo").
		WillReturnError(pgx.ErrNoRows)

	row, err := s.GetDataSource(context.Background(), "c1", "ceo")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDataSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO data_sources .* ON CONFLICT \(entity_id, field_name\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "c1", "revenue", "$2M", "", "auto_discovery", "https://acme.example/ir",
			"", 70.0, "high", false, "", pgxmock.AnyArg(), "grounded_search", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	row := &model.DataSourceRow{
		EntityID: "c1", FieldName: "revenue", CurrentValue: "$2M", SourceType: model.SourceAutoDiscovery,
		SourceURL: "https://acme.example/ir", ConfidenceScore: 70, ConfidenceLevel: model.ConfidenceHigh,
		ExtractionMethod: "grounded_search",
	}
	require.NoError(t, s.UpsertDataSource(context.Background(), row))
	assert.NotEmpty(t, row.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDataSources_All(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM data_sources ORDER BY entity_id, field_name`).
		WillReturnRows(pgxmock.NewRows(dataSourceColumns))

	rows, err := s.ListDataSources(context.Background(), AllEntities)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyCorrection(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	val := "N/A"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO competitor_fields`).
		WithArgs("c1", "ceo", "N/A", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO data_sources`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ApplyCorrection(context.Background(), &model.Correction{
		EntityID: "c1", FieldName: "ceo", LiveValue: &val,
		Source: model.DataSourceRow{CurrentValue: "N/A", PreviousValue: "Jane Doe", SourceType: model.SourceUnknown},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyCorrection_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	val := "750"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO competitor_fields`).
		WithArgs("c1", "employee_count", "750", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO data_sources`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO change_log`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.ApplyCorrection(context.Background(), &model.Correction{
		EntityID: "c1", FieldName: "employee_count", LiveValue: &val,
		Source:    model.DataSourceRow{CurrentValue: "750", SourceType: model.SourceLinkedIn},
		ChangeLog: &model.ChangeLogEntry{EntityID: "c1", FieldName: "employee_count", Severity: model.SeverityMedium},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append change log")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertKBExtractions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_kb_extractions"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_kb_extractions"}, kbExtractionCols).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "kb_extractions"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.InsertKBExtractions(context.Background(), "c1", []model.SourceRecord{
		{Field: "revenue", Value: "$2M", SourceType: model.SourceKBExtraction},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("connection refused"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}
