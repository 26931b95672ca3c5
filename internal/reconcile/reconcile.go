// Package reconcile picks a best value per field from competing source
// records and reports where sources disagree.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/competitor-intel/internal/conflict"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/scoring"
)

// agreementWindow is how many top-scoring records must agree for the
// agreement method.
const agreementWindow = 3

// Reconciler reconciles source records field by field.
type Reconciler struct {
	scorer     *scoring.Scorer
	thresholds Thresholds
	detector   conflict.Detector
	policy     ConflictPolicy
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithThresholds overrides the default heuristics.
func WithThresholds(t Thresholds) Option {
	return func(r *Reconciler) { r.thresholds = t.withDefaults() }
}

// WithPolicy overrides the conflict policy.
func WithPolicy(p ConflictPolicy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithScorer overrides the scorer (and therefore the clock).
func WithScorer(s *scoring.Scorer) Option {
	return func(r *Reconciler) { r.scorer = s }
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		scorer:     scoring.NewScorer(),
		thresholds: DefaultThresholds(),
		policy:     Pairwise{},
	}
	for _, o := range opts {
		o(r)
	}
	r.detector = r.thresholds.Detector()
	return r
}

// Thresholds returns the active heuristics.
func (r *Reconciler) Thresholds() Thresholds { return r.thresholds }

// Scorer returns the scorer used for records.
func (r *Reconciler) Scorer() *scoring.Scorer { return r.scorer }

// ReconcileField selects the best value for one field. Records with empty
// values are ignored. With no usable records the result has no value, zero
// confidence, method "none" and is flagged for review.
func (r *Reconciler) ReconcileField(entityID, field string, records []model.SourceRecord) *model.ReconciliationResult {
	res := &model.ReconciliationResult{
		EntityID:    entityID,
		Field:       field,
		Conflicts:   []model.ConflictEntry{},
		SourcesUsed: []model.SourceSummary{},
	}

	scored := make([]Scored, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Value) == "" {
			continue
		}
		scored = append(scored, Scored{Record: rec, Score: r.scorer.Score(rec)})
	}
	if len(scored) == 0 {
		res.ConfidenceLevel = model.ConfidenceLow
		res.Method = model.MethodNone
		res.NeedsReview = true
		res.Notes = "no sources with a value"
		return res
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	winner := scored[0]
	cutoff := winner.Score * r.thresholds.RivalCutoff
	var rivals []Scored
	for _, s := range scored[1:] {
		if s.Score >= cutoff {
			rivals = append(rivals, s)
		}
	}

	if c := r.policy.Conflicts(winner, rivals, r.detector); len(c) > 0 {
		res.Conflicts = c
	}

	value := winner.Record.Value
	best := winner.Summary()
	res.BestValue = &value
	res.BestSource = &best
	res.ConfidenceScore = winner.Score
	res.ConfidenceLevel = model.LevelFor(winner.Score)
	res.Method = selectMethod(scored)
	res.NeedsReview = len(res.Conflicts) > 0

	for i, s := range scored {
		if i >= r.thresholds.MaxSourcesUsed {
			break
		}
		res.SourcesUsed = append(res.SourcesUsed, s.Summary())
	}
	res.Notes = fmt.Sprintf("%d source(s), %d rival(s), %d conflict(s)", len(scored), len(rivals), len(res.Conflicts))
	return res
}

// selectMethod names the rule that justifies the winner. scored must be
// sorted by descending score.
func selectMethod(scored []Scored) model.Method {
	winner := scored[0].Record
	switch {
	case scoring.IsTopTier(winner.SourceType):
		return model.MethodAuthority
	case winner.IsVerified:
		return model.MethodManual
	case topAgree(scored):
		return model.MethodAgreement
	default:
		return model.MethodFreshness
	}
}

func topAgree(scored []Scored) bool {
	if len(scored) < 2 {
		return false
	}
	n := min(agreementWindow, len(scored))
	for _, s := range scored[1:n] {
		if !conflict.Equivalent(scored[0].Record.Value, s.Record.Value) {
			return false
		}
	}
	return true
}

// ReconcileEntity groups records by field and reconciles each field.
func (r *Reconciler) ReconcileEntity(entityID string, records []model.SourceRecord) map[string]*model.ReconciliationResult {
	byField := make(map[string][]model.SourceRecord)
	var order []string
	for _, rec := range records {
		if _, ok := byField[rec.Field]; !ok {
			order = append(order, rec.Field)
		}
		byField[rec.Field] = append(byField[rec.Field], rec)
	}

	out := make(map[string]*model.ReconciliationResult, len(byField))
	for _, f := range order {
		out[f] = r.ReconcileField(entityID, f, byField[f])
	}
	return out
}
