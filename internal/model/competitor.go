package model

import "time"

// Competitor is a tracked competitor entity.
type Competitor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DataSourceRow is the persisted provenance of one competitor field.
// There is at most one row per (EntityID, FieldName).
type DataSourceRow struct {
	ID               string          `json:"id"`
	EntityID         string          `json:"entity_id"`
	FieldName        string          `json:"field_name"`
	CurrentValue     string          `json:"current_value"`
	PreviousValue    string          `json:"previous_value,omitempty"`
	SourceType       SourceType      `json:"source_type"`
	SourceURL        string          `json:"source_url,omitempty"`
	SourceName       string          `json:"source_name,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ConfidenceLevel  ConfidenceLevel `json:"confidence_level"`
	IsVerified       bool            `json:"is_verified"`
	VerifiedBy       string          `json:"verified_by,omitempty"`
	VerificationDate *time.Time      `json:"verification_date,omitempty"`
	ExtractionMethod string          `json:"extraction_method,omitempty"`
	ExtractedAt      *time.Time      `json:"extracted_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasSource reports whether the row already carries a citable URL.
func (r *DataSourceRow) HasSource() bool {
	return r != nil && r.SourceURL != ""
}

// Severity grades a change-log entry.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ChangeLogEntry is an append-only audit record of a corrected value.
type ChangeLogEntry struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	EntityName    string    `json:"entity_name"`
	FieldName     string    `json:"field_name"`
	PreviousValue string    `json:"previous_value"`
	NewValue      string    `json:"new_value"`
	Source        string    `json:"source"`
	Severity      Severity  `json:"severity"`
	DetectedAt    time.Time `json:"detected_at"`
}

// Correction bundles the writes for one verified field so they can be
// committed together.
type Correction struct {
	EntityID  string
	FieldName string
	LiveValue *string
	Source    DataSourceRow
	ChangeLog *ChangeLogEntry
}
