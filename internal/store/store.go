// Package store persists competitors, their live field values, field
// provenance, the change log and knowledge-base extractions.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
)

// ErrNotFound is returned when a referenced competitor does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the engine.
type Store interface {
	// Competitors
	UpsertCompetitor(ctx context.Context, c *model.Competitor) error
	GetCompetitor(ctx context.Context, id string) (*model.Competitor, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)

	// Live field values
	GetFieldValues(ctx context.Context, entityID string) (map[string]string, error)
	SetFieldValue(ctx context.Context, entityID, field, value string) error

	// Provenance. GetDataSource returns nil, nil when no row exists.
	GetDataSource(ctx context.Context, entityID, field string) (*model.DataSourceRow, error)
	ListDataSources(ctx context.Context, entityID string) ([]model.DataSourceRow, error)
	UpsertDataSource(ctx context.Context, row *model.DataSourceRow) error

	// Change log (append-only)
	AppendChangeLog(ctx context.Context, e *model.ChangeLogEntry) error
	ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error)

	// ApplyCorrection commits a verified field's writes in one transaction.
	ApplyCorrection(ctx context.Context, c *model.Correction) error

	// Knowledge-base extractions
	InsertKBExtractions(ctx context.Context, entityID string, recs []model.SourceRecord) (int64, error)
	ListKBExtractions(ctx context.Context, entityID string) ([]model.SourceRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// AllEntities makes ListDataSources return rows for every competitor.
const AllEntities = ""
