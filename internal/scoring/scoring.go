// Package scoring computes authority, freshness and confidence scores for
// source records.
package scoring

import (
	"math"
	"time"

	"github.com/sells-group/competitor-intel/internal/model"
)

const (
	// MaxFreshnessPenalty caps the age penalty.
	MaxFreshnessPenalty = 30
	// VerifiedBonus is added to human- or AI-verified records.
	VerifiedBonus = 10
)

// Authority returns the base authority score for a source type.
func Authority(t model.SourceType) float64 {
	switch t {
	case model.SourceRegulatoryFiling:
		return 100
	case model.SourceClientProvided:
		return 90
	case model.SourceVerifiedAPI:
		return 85
	case model.SourceAnalystReport:
		return 80
	case model.SourceManualVerified:
		return 75
	case model.SourceKBExtraction:
		return 70
	case model.SourceAutoDiscovery:
		return 60
	case model.SourceWebsiteScrape:
		return 50
	case model.SourceNewsArticle:
		return 40
	case model.SourceLinkedIn, model.SourceGlassdoor, model.SourceReviewSite:
		return 35
	case model.SourceSocialMedia:
		return 30
	default:
		return 10
	}
}

// IsTopTier reports whether t is one of the three highest-authority types.
func IsTopTier(t model.SourceType) bool {
	switch t {
	case model.SourceRegulatoryFiling, model.SourceClientProvided, model.SourceVerifiedAPI:
		return true
	}
	return false
}

// FreshnessPenalty returns 5 points per full 30 days of age, capped at 30.
func FreshnessPenalty(daysOld int) float64 {
	if daysOld <= 0 {
		return 0
	}
	return math.Min(float64(daysOld/30)*5, MaxFreshnessPenalty)
}

// DaysOld returns the whole days between the record's as-of date and now.
// Records without a date, or dated in the future, are 0 days old.
func DaysOld(rec model.SourceRecord, now time.Time) int {
	asOf := rec.AsOf()
	if asOf == nil {
		return 0
	}
	d := now.Sub(*asOf)
	if d <= 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// Clamp bounds s to [0, 100].
func Clamp(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

// Scorer scores records relative to a clock.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithNow overrides the clock.
func WithNow(fn func() time.Time) Option {
	return func(s *Scorer) { s.now = fn }
}

// NewScorer creates a Scorer using the wall clock.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the scorer's current time.
func (s *Scorer) Now() time.Time { return s.now() }

// Score computes a record's confidence in [0, 100]:
// authority minus freshness penalty, scaled by prior confidence when present,
// plus a bonus when verified.
func (s *Scorer) Score(rec model.SourceRecord) float64 {
	score := Authority(rec.SourceType) - FreshnessPenalty(DaysOld(rec, s.now()))
	if rec.Confidence > 0 {
		score *= 0.5 + rec.Confidence/200
	}
	if rec.IsVerified {
		score += VerifiedBonus
	}
	return Clamp(score)
}
