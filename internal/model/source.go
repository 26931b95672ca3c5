package model

import "time"

// SourceType identifies where a claimed value came from. The set is closed;
// anything not recognised maps to SourceUnknown.
type SourceType string

const (
	SourceRegulatoryFiling SourceType = "regulatory_filing"
	SourceClientProvided   SourceType = "client_provided"
	SourceVerifiedAPI      SourceType = "verified_api"
	SourceAnalystReport    SourceType = "analyst_report"
	SourceManualVerified   SourceType = "manual_verified"
	SourceKBExtraction     SourceType = "kb_extraction"
	SourceAutoDiscovery    SourceType = "auto_discovery"
	SourceWebsiteScrape    SourceType = "website_scrape"
	SourceNewsArticle      SourceType = "news_article"
	SourceLinkedIn         SourceType = "linkedin"
	SourceGlassdoor        SourceType = "glassdoor"
	SourceReviewSite       SourceType = "review_site"
	SourceSocialMedia      SourceType = "social_media"
	SourceUnknown          SourceType = "unknown"
)

// ParseSourceType maps a stored string onto the closed set.
func ParseSourceType(s string) SourceType {
	switch t := SourceType(s); t {
	case SourceRegulatoryFiling, SourceClientProvided, SourceVerifiedAPI,
		SourceAnalystReport, SourceManualVerified, SourceKBExtraction,
		SourceAutoDiscovery, SourceWebsiteScrape, SourceNewsArticle,
		SourceLinkedIn, SourceGlassdoor, SourceReviewSite, SourceSocialMedia:
		return t
	default:
		return SourceUnknown
	}
}

// Origin tells whether a record came from the knowledge base or live data.
type Origin string

const (
	OriginKB   Origin = "kb"
	OriginLive Origin = "live"
)

// Unverifiable is written to a live field when verification cannot confirm it.
const Unverifiable = "N/A"

// SourceRecord is one claimed value for one field from one source.
type SourceRecord struct {
	Field       string     `json:"field" validate:"required"`
	Value       string     `json:"value"`
	SourceType  SourceType `json:"source_type" validate:"required"`
	SourceID    string     `json:"source_id"`
	Origin      Origin     `json:"origin" validate:"omitempty,oneof=kb live"`
	Confidence  float64    `json:"confidence" validate:"gte=0,lte=100"`
	DataAsOf    *time.Time `json:"data_as_of,omitempty"`
	ExtractedAt *time.Time `json:"extracted_at,omitempty"`
	IsVerified  bool       `json:"is_verified"`
	DocumentID  string     `json:"document_id,omitempty"`
	ChunkID     string     `json:"chunk_id,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceName  string     `json:"source_name,omitempty"`
}

// AsOf returns the date the record's value describes, if known.
func (r SourceRecord) AsOf() *time.Time {
	if r.DataAsOf != nil {
		return r.DataAsOf
	}
	return r.ExtractedAt
}

// ConfidenceLevel buckets a 0-100 confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceLow      ConfidenceLevel = "low"
)

// LevelFor buckets a score: >=70 high, >=40 moderate, else low.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 70:
		return ConfidenceHigh
	case score >= 40:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}

// Method records which rule picked a reconciliation winner.
type Method string

const (
	MethodAuthority Method = "authority"
	MethodManual    Method = "manual"
	MethodAgreement Method = "agreement"
	MethodFreshness Method = "freshness"
	MethodNone      Method = "none"
)

// DifferenceType says how two values were compared.
type DifferenceType string

const (
	DifferenceNumeric DifferenceType = "numeric"
	DifferenceString  DifferenceType = "string"
)

// SourceSummary is a scored record as reported in results.
type SourceSummary struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id,omitempty"`
	SourceName string     `json:"source_name,omitempty"`
	SourceURL  string     `json:"source_url,omitempty"`
	Origin     Origin     `json:"origin,omitempty"`
	Value      string     `json:"value"`
	Score      float64    `json:"score"`
	AsOf       *time.Time `json:"as_of,omitempty"`
	IsVerified bool       `json:"is_verified"`
}

// ConflictEntry describes a rival source that disagrees with the winner.
type ConflictEntry struct {
	Winner         SourceSummary  `json:"winner"`
	Rival          SourceSummary  `json:"rival"`
	Difference     float64        `json:"difference"`
	DifferenceType DifferenceType `json:"difference_type"`
	RivalCount     int            `json:"rival_count,omitempty"`
}

// ReconciliationResult is the outcome of reconciling one field.
type ReconciliationResult struct {
	EntityID        string          `json:"entity_id"`
	Field           string          `json:"field"`
	BestValue       *string         `json:"best_value"`
	BestSource      *SourceSummary  `json:"best_source,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Method          Method          `json:"method"`
	Conflicts       []ConflictEntry `json:"conflicts"`
	NeedsReview     bool            `json:"needs_review"`
	SourcesUsed     []SourceSummary `json:"sources_used"`
	Notes           string          `json:"notes,omitempty"`
}

// OriginFreshness is the date range observed for one origin.
type OriginFreshness struct {
	Oldest *time.Time `json:"oldest,omitempty"`
	Newest *time.Time `json:"newest,omitempty"`
}

// FreshnessSummary reports data age across a unified context.
type FreshnessSummary struct {
	KB          OriginFreshness `json:"kb"`
	Live        OriginFreshness `json:"live"`
	StaleFields []string        `json:"stale_fields"`
}

// Citation points at a knowledge-base passage used for context.
type Citation struct {
	DocumentID string  `json:"document_id,omitempty"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// UnifiedContext merges reconciled fields, KB context and live values.
type UnifiedContext struct {
	EntityID         string                           `json:"entity_id"`
	EntityName       string                           `json:"entity_name"`
	Fields           map[string]*ReconciliationResult `json:"fields"`
	KBContext        string                           `json:"kb_context"`
	KBCitations      []Citation                       `json:"kb_citations"`
	LiveSnapshot     map[string]string                `json:"live_snapshot"`
	ConflictsSummary []string                         `json:"conflicts_summary"`
	Freshness        FreshnessSummary                 `json:"freshness_summary"`
	KBSourceCount    int                              `json:"kb_source_count"`
	LiveSourceCount  int                              `json:"live_source_count"`
	TotalSources     int                              `json:"total_sources"`
	GeneratedAt      time.Time                        `json:"generated_at"`
}
