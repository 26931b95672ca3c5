package model

// FieldState tracks a field through one discovery pass.
type FieldState string

const (
	StateUnsourced  FieldState = "unsourced"
	StateDiscovered FieldState = "discovered"
	StateValidated  FieldState = "validated"
	StatePersisted  FieldState = "persisted"
)

// DiscoveryResult summarises one DiscoverSources run for an entity.
type DiscoveryResult struct {
	EntityID        string   `json:"entity_id"`
	TotalFields     int      `json:"total_fields"`
	FieldsProcessed int      `json:"fields_processed"`
	SourcesFound    int      `json:"sources_found"`
	Errors          []string `json:"errors"`
	Aborted         bool     `json:"aborted,omitempty"`
}

// VerificationStatus is the structured verdict from a grounded search.
type VerificationStatus string

const (
	StatusCorrect      VerificationStatus = "correct"
	StatusWrong        VerificationStatus = "wrong"
	StatusUnverifiable VerificationStatus = "unverifiable"
)

// VerificationDetail records the outcome for one field.
type VerificationDetail struct {
	Field         string             `json:"field"`
	Status        VerificationStatus `json:"status"`
	PreviousValue string             `json:"previous_value"`
	NewValue      string             `json:"new_value,omitempty"`
	SourceURL     string             `json:"source_url,omitempty"`
	Evidence      string             `json:"evidence,omitempty"`
}

// VerificationSummary summarises one VerifyAndCorrect run for an entity.
type VerificationSummary struct {
	EntityID           string               `json:"entity_id"`
	FieldsChecked      int                  `json:"fields_checked"`
	FieldsCorrect      int                  `json:"fields_correct"`
	FieldsCorrected    int                  `json:"fields_corrected"`
	FieldsUnverifiable int                  `json:"fields_unverifiable"`
	Errors             []string             `json:"errors"`
	Details            []VerificationDetail `json:"details"`
	Aborted            bool                 `json:"aborted,omitempty"`
}

// TierCoverage is source coverage for one priority tier.
type TierCoverage struct {
	Total       int     `json:"total"`
	WithSources int     `json:"with_sources"`
	Percent     float64 `json:"percent"`
}

// CoverageReport summarises source coverage across all competitors.
type CoverageReport struct {
	Competitors       int                     `json:"competitors"`
	TotalFields       int                     `json:"total_fields"`
	FieldsWithSources int                     `json:"fields_with_sources"`
	CoveragePercent   float64                 `json:"coverage_percent"`
	ByPriority        map[string]TierCoverage `json:"by_priority"`
}
