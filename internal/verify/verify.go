// Package verify re-checks battlecard-critical field values against live
// sources and corrects the stored values.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/competitor-intel/internal/conflict"
	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/scoring"
	"github.com/sells-group/competitor-intel/internal/search"
	"github.com/sells-group/competitor-intel/internal/urlcheck"
)

const (
	// VerifiedBy marks rows confirmed by this workflow.
	VerifiedBy = "ai_verification"

	// DefaultInterCallDelay separates successive verification calls.
	DefaultInterCallDelay = time.Second
	// DefaultTimeout bounds one verification call.
	DefaultTimeout = 45 * time.Second
)

// Store is the persistence verification needs.
type Store interface {
	GetCompetitor(ctx context.Context, id string) (*model.Competitor, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	GetFieldValues(ctx context.Context, entityID string) (map[string]string, error)
	GetDataSource(ctx context.Context, entityID, field string) (*model.DataSourceRow, error)
	ApplyCorrection(ctx context.Context, c *model.Correction) error
}

// Verifier runs the verify-and-correct workflow.
type Verifier struct {
	store       Store
	search      search.GroundedSearch
	metrics     *metrics.Recorder
	delay       time.Duration
	timeout     time.Duration
	concurrency int
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMetrics records verification statuses.
func WithMetrics(m *metrics.Recorder) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithInterCallDelay sets the pause between calls. Zero disables it.
func WithInterCallDelay(d time.Duration) Option {
	return func(v *Verifier) { v.delay = d }
}

// WithTimeout bounds each search call.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithConcurrency bounds how many entities VerifyAll processes at once.
func WithConcurrency(n int) Option {
	return func(v *Verifier) { v.concurrency = n }
}

// WithNow overrides the clock.
func WithNow(fn func() time.Time) Option {
	return func(v *Verifier) { v.now = fn }
}

// WithSleep overrides how the inter-call delay is waited out.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(v *Verifier) { v.sleep = fn }
}

// New creates a Verifier.
func New(store Store, s search.GroundedSearch, opts ...Option) *Verifier {
	v := &Verifier{
		store:       store,
		search:      s,
		delay:       DefaultInterCallDelay,
		timeout:     DefaultTimeout,
		concurrency: 3,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyAndCorrect checks every critical field that has a live value.
// Search and parse failures are itemized and never stop the run; a store
// failure aborts it.
func (v *Verifier) VerifyAndCorrect(ctx context.Context, entityID string) *model.VerificationSummary {
	start := time.Now()
	defer func() { v.metrics.ObserveRun("verify", time.Since(start)) }()

	log := zap.L().With(zap.String("entity_id", entityID))
	sum := &model.VerificationSummary{
		EntityID: entityID,
		Errors:   []string{},
		Details:  []model.VerificationDetail{},
	}

	comp, err := v.store.GetCompetitor(ctx, entityID)
	if err != nil {
		return abort(sum, eris.Wrap(err, "verify: load competitor"))
	}
	live, err := v.store.GetFieldValues(ctx, entityID)
	if err != nil {
		return abort(sum, eris.Wrap(err, "verify: load field values"))
	}
	if v.search == nil {
		sum.Errors = append(sum.Errors, "verify: no grounded search configured")
		return sum
	}

	calls := 0
	for _, desc := range model.Critical() {
		field := string(desc.Name)
		current := strings.TrimSpace(live[field])
		if current == "" || current == model.Unverifiable {
			continue
		}
		if ctx.Err() != nil {
			sum.Errors = append(sum.Errors, eris.Wrap(ctx.Err(), "verify: cancelled").Error())
			break
		}
		if calls > 0 && v.delay > 0 {
			if err := v.sleep(ctx, v.delay); err != nil {
				sum.Errors = append(sum.Errors, eris.Wrap(err, "verify: cancelled").Error())
				break
			}
		}
		calls++
		sum.FieldsChecked++

		detail, err := v.field(ctx, comp, desc, current)
		if err != nil {
			if isStoreErr(err) {
				return abort(sum, err)
			}
			log.Warn("verify: field failed", zap.String("field", field), zap.Error(err))
			sum.Errors = append(sum.Errors, err.Error())
			v.metrics.VerificationStatus("error")
			continue
		}

		switch detail.Status {
		case model.StatusCorrect:
			sum.FieldsCorrect++
		case model.StatusWrong:
			sum.FieldsCorrected++
		case model.StatusUnverifiable:
			sum.FieldsUnverifiable++
		}
		sum.Details = append(sum.Details, *detail)
		v.metrics.VerificationStatus(string(detail.Status))
	}

	log.Info("verify: complete",
		zap.String("competitor", comp.Name),
		zap.Int("checked", sum.FieldsChecked),
		zap.Int("correct", sum.FieldsCorrect),
		zap.Int("corrected", sum.FieldsCorrected),
		zap.Int("unverifiable", sum.FieldsUnverifiable),
		zap.Int("errors", len(sum.Errors)),
	)
	return sum
}

// storeError marks failures of the persistence layer.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func isStoreErr(err error) bool {
	var se *storeError
	return errors.As(err, &se)
}

func abort(sum *model.VerificationSummary, err error) *model.VerificationSummary {
	zap.L().Error("verify: aborted", zap.String("entity_id", sum.EntityID), zap.Error(err))
	sum.Aborted = true
	sum.Errors = append(sum.Errors, err.Error())
	return sum
}

func (v *Verifier) field(ctx context.Context, comp *model.Competitor, desc model.FieldDescriptor, current string) (*model.VerificationDetail, error) {
	field := string(desc.Name)
	sctx, cancel := context.WithTimeout(ctx, v.timeout)
	ans, err := v.search.Ask(sctx, Prompt(comp, desc, current))
	cancel()
	if err != nil {
		return nil, eris.Wrapf(err, "verify: %s search", field)
	}

	verdict, err := ParseVerdict(ans.Text)
	if err != nil {
		zap.L().Warn("verify: unparsable response, treating as unverifiable",
			zap.String("entity_id", comp.ID),
			zap.String("field", field),
			zap.Error(err),
		)
		verdict = &Verdict{Status: model.StatusUnverifiable}
	}
	if verdict.SourceURL == "" && len(ans.Citations) > 0 {
		verdict.SourceURL = ans.Citations[0]
	}
	normalize(verdict, current)

	prev, err := v.store.GetDataSource(ctx, comp.ID, field)
	if err != nil {
		return nil, &storeError{eris.Wrapf(err, "verify: load %s source", field)}
	}

	corr := v.correction(comp, field, current, verdict, prev)
	if err := v.store.ApplyCorrection(ctx, corr); err != nil {
		return nil, &storeError{eris.Wrapf(err, "verify: apply %s", field)}
	}

	d := &model.VerificationDetail{
		Field:         field,
		Status:        verdict.Status,
		PreviousValue: current,
		SourceURL:     verdict.SourceURL,
		Evidence:      verdict.Evidence,
	}
	if corr.LiveValue != nil {
		d.NewValue = *corr.LiveValue
	}
	return d, nil
}

// normalize resolves contradictory verdicts: a "wrong" without a value
// cannot be applied and one restating the stored value is a confirmation.
func normalize(v *Verdict, current string) {
	if v.Status != model.StatusWrong {
		return
	}
	switch {
	case strings.TrimSpace(v.VerifiedValue) == "":
		v.Status = model.StatusUnverifiable
	case conflict.Equivalent(v.VerifiedValue, current):
		v.Status = model.StatusCorrect
	}
}

// correction builds the writes for one verdict. prev may be nil.
func (v *Verifier) correction(comp *model.Competitor, field, current string, vd *Verdict, prev *model.DataSourceRow) *model.Correction {
	now := v.now().UTC()
	row := model.DataSourceRow{SourceType: model.SourceAutoDiscovery, ExtractionMethod: VerifiedBy}
	if prev != nil {
		row = *prev
	}
	if vd.SourceURL != "" {
		row.SourceURL = vd.SourceURL
		row.SourceType = urlcheck.Classify(vd.SourceURL, comp.Website)
		row.SourceName = urlcheck.Host(vd.SourceURL)
	}
	if vd.SourceName != "" {
		row.SourceName = vd.SourceName
	}

	corr := &model.Correction{EntityID: comp.ID, FieldName: field}
	switch vd.Status {
	case model.StatusCorrect:
		row.CurrentValue = current
		v.markVerified(&row, now)
	case model.StatusWrong:
		newValue := vd.VerifiedValue
		corr.LiveValue = &newValue
		row.PreviousValue = current
		row.CurrentValue = newValue
		v.markVerified(&row, now)
		corr.ChangeLog = &model.ChangeLogEntry{
			EntityID:      comp.ID,
			EntityName:    comp.Name,
			FieldName:     field,
			PreviousValue: current,
			NewValue:      newValue,
			Source:        changeSource(vd),
			Severity:      model.SeverityMedium,
			DetectedAt:    now,
		}
	default:
		na := model.Unverifiable
		corr.LiveValue = &na
		row.PreviousValue = current
		row.CurrentValue = na
		row.IsVerified = false
		row.VerifiedBy = ""
		row.VerificationDate = nil
		row.ConfidenceScore = 0
		row.ConfidenceLevel = model.ConfidenceLow
	}
	corr.Source = row
	return corr
}

func (v *Verifier) markVerified(row *model.DataSourceRow, now time.Time) {
	row.IsVerified = true
	row.VerifiedBy = VerifiedBy
	row.VerificationDate = &now
	score := scoring.NewScorer(scoring.WithNow(func() time.Time { return now })).Score(model.SourceRecord{
		SourceType: row.SourceType,
		DataAsOf:   &now,
		IsVerified: true,
	})
	row.ConfidenceScore = score
	row.ConfidenceLevel = model.LevelFor(score)
}

func changeSource(vd *Verdict) string {
	switch {
	case vd.SourceURL != "":
		return vd.SourceURL
	case vd.SourceName != "":
		return vd.SourceName
	default:
		return VerifiedBy
	}
}

// Prompt asks grounded search to check a stored value and answer in JSON.
func Prompt(c *model.Competitor, desc model.FieldDescriptor, current string) string {
	subject := c.Name
	if c.Website != "" {
		subject = fmt.Sprintf("%s (%s)", c.Name, c.Website)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "We have recorded the %s of %s as: %q.\n", strings.ToLower(desc.Label), subject, current)
	b.WriteString("Search current, authoritative public sources and check whether this value is still accurate.\n")
	if desc.Kind == model.KindNumeric {
		b.WriteString("Treat figures within normal rounding of each other as the same value.\n")
	}
	b.WriteString("Respond with only a JSON object of the form:\n")
	b.WriteString(`{"status": "correct" | "wrong" | "unverifiable", "verified_value": "the accurate value if wrong", "source_url": "https://...", "source_name": "publisher", "evidence": "short quote"}`)
	b.WriteString("\nUse \"unverifiable\" when no reliable source states the value.")
	return b.String()
}

// VerifyAll verifies each entity with bounded parallelism. Results keep the
// order of entityIDs; an empty list means every competitor.
func (v *Verifier) VerifyAll(ctx context.Context, entityIDs []string) ([]*model.VerificationSummary, error) {
	if len(entityIDs) == 0 {
		comps, err := v.store.ListCompetitors(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "verify: list competitors")
		}
		for _, c := range comps {
			entityIDs = append(entityIDs, c.ID)
		}
	}

	out := make([]*model.VerificationSummary, len(entityIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.concurrency, 1))
	for i, id := range entityIDs {
		g.Go(func() error {
			out[i] = v.VerifyAndCorrect(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
