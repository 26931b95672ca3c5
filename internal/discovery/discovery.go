// Package discovery finds, validates and persists a citable source for each
// competitor field that does not have one yet.
package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/provider"
	"github.com/sells-group/competitor-intel/internal/scoring"
	"github.com/sells-group/competitor-intel/internal/search"
	"github.com/sells-group/competitor-intel/internal/urlcheck"
)

const (
	// Confidence bonuses on top of the classified source's authority.
	evidenceBonus   = 5
	validationBonus = 10

	// DefaultInterCallDelay separates successive fields of one entity.
	DefaultInterCallDelay = 2 * time.Second
	// DefaultSearchTimeout bounds one grounded-search call.
	DefaultSearchTimeout = 30 * time.Second
)

// Outcomes recorded per processed field.
const (
	OutcomeProvider  = "provider"
	OutcomeSearch    = "search"
	OutcomeFallback  = "fallback"
	OutcomeUnsourced = "unsourced"
)

// Store is the persistence discovery needs.
type Store interface {
	GetCompetitor(ctx context.Context, id string) (*model.Competitor, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	GetFieldValues(ctx context.Context, entityID string) (map[string]string, error)
	SetFieldValue(ctx context.Context, entityID, field, value string) error
	ListDataSources(ctx context.Context, entityID string) ([]model.DataSourceRow, error)
	UpsertDataSource(ctx context.Context, row *model.DataSourceRow) error
}

// Options narrows one discovery run.
type Options struct {
	// Priority restricts the run to one tier when set.
	Priority *model.PriorityTier `json:"priority,omitempty"`
	// MaxFields caps how many fields are processed. Zero means no cap.
	MaxFields int `json:"max_fields,omitempty"`
}

// Discoverer runs source discovery against a store.
type Discoverer struct {
	store       Store
	providers   *provider.Registry
	search      search.GroundedSearch
	validator   *urlcheck.Validator
	cache       *urlcheck.Cache
	metrics     *metrics.Recorder
	delay       time.Duration
	searchTTL   time.Duration
	headTimeout time.Duration
	concurrency int
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithProviders sets the enterprise field-value providers.
func WithProviders(r *provider.Registry) Option {
	return func(d *Discoverer) { d.providers = r }
}

// WithSearch sets the grounded search used when no provider has a value.
func WithSearch(s search.GroundedSearch) Option {
	return func(d *Discoverer) { d.search = s }
}

// WithValidator replaces the URL validator.
func WithValidator(v *urlcheck.Validator) Option {
	return func(d *Discoverer) { d.validator = v }
}

// WithCache shares a validated-URL cache across runs.
func WithCache(c *urlcheck.Cache) Option {
	return func(d *Discoverer) { d.cache = c }
}

// WithMetrics records per-field outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Discoverer) { d.metrics = m }
}

// WithInterCallDelay sets the pause between fields. Zero disables it.
func WithInterCallDelay(delay time.Duration) Option {
	return func(d *Discoverer) { d.delay = delay }
}

// WithTimeouts sets the search and HEAD timeouts. Non-positive values keep
// the defaults.
func WithTimeouts(searchTimeout, headTimeout time.Duration) Option {
	return func(d *Discoverer) {
		if searchTimeout > 0 {
			d.searchTTL = searchTimeout
		}
		if headTimeout > 0 {
			d.headTimeout = headTimeout
		}
	}
}

// WithConcurrency bounds how many entities DiscoverAll processes at once.
func WithConcurrency(n int) Option {
	return func(d *Discoverer) { d.concurrency = n }
}

// WithNow overrides the clock.
func WithNow(fn func() time.Time) Option {
	return func(d *Discoverer) { d.now = fn }
}

// WithSleep overrides how the inter-call delay is waited out.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(d *Discoverer) { d.sleep = fn }
}

// New creates a Discoverer.
func New(store Store, opts ...Option) *Discoverer {
	d := &Discoverer{
		store:       store,
		delay:       DefaultInterCallDelay,
		searchTTL:   DefaultSearchTimeout,
		headTimeout: urlcheck.DefaultTimeout,
		concurrency: 3,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.validator == nil {
		d.validator = urlcheck.NewValidator()
	}
	return d
}

// DiscoverSources processes the entity's unsourced fields in priority order.
// Collaborator failures are itemized in Errors and never stop the run; a
// store failure aborts it.
func (d *Discoverer) DiscoverSources(ctx context.Context, entityID string, opts Options) *model.DiscoveryResult {
	start := time.Now()
	defer func() { d.metrics.ObserveRun("discover", time.Since(start)) }()

	log := zap.L().With(zap.String("entity_id", entityID))
	res := &model.DiscoveryResult{EntityID: entityID, Errors: []string{}}

	comp, err := d.store.GetCompetitor(ctx, entityID)
	if err != nil {
		return abort(res, eris.Wrap(err, "discovery: load competitor"))
	}
	rows, err := d.store.ListDataSources(ctx, entityID)
	if err != nil {
		return abort(res, eris.Wrap(err, "discovery: list data sources"))
	}
	live, err := d.store.GetFieldValues(ctx, entityID)
	if err != nil {
		return abort(res, eris.Wrap(err, "discovery: load field values"))
	}

	existing := make(map[string]*model.DataSourceRow, len(rows))
	for i := range rows {
		existing[rows[i].FieldName] = &rows[i]
	}

	var candidates []model.FieldDescriptor
	for _, desc := range model.Fields(opts.Priority) {
		if existing[string(desc.Name)].HasSource() {
			continue
		}
		candidates = append(candidates, desc)
	}
	res.TotalFields = len(candidates)
	if opts.MaxFields > 0 && len(candidates) > opts.MaxFields {
		candidates = candidates[:opts.MaxFields]
	}
	if len(candidates) == 0 {
		log.Info("discovery: nothing to do")
		return res
	}

	fo := d.providers.FanOut(ctx, comp.Name)
	for _, e := range fo.Errors {
		res.Errors = append(res.Errors, e.Error())
	}

	run := &entityRun{
		d:        d,
		comp:     comp,
		live:     live,
		existing: existing,
		fanout:   fo,
		res:      res,
	}
	for i, desc := range candidates {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, eris.Wrap(ctx.Err(), "discovery: cancelled").Error())
			break
		}
		if i > 0 && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				res.Errors = append(res.Errors, eris.Wrap(err, "discovery: cancelled").Error())
				break
			}
		}
		if err := run.field(ctx, desc); err != nil {
			return abort(res, err)
		}
		res.FieldsProcessed++
	}

	log.Info("discovery: complete",
		zap.String("competitor", comp.Name),
		zap.Int("total_fields", res.TotalFields),
		zap.Int("fields_processed", res.FieldsProcessed),
		zap.Int("sources_found", res.SourcesFound),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

func abort(res *model.DiscoveryResult, err error) *model.DiscoveryResult {
	zap.L().Error("discovery: aborted", zap.String("entity_id", res.EntityID), zap.Error(err))
	res.Aborted = true
	res.Errors = append(res.Errors, err.Error())
	return res
}

// entityRun carries the state shared by the fields of one entity.
type entityRun struct {
	d        *Discoverer
	comp     *model.Competitor
	live     map[string]string
	existing map[string]*model.DataSourceRow
	fanout   *provider.FanOutResult
	res      *model.DiscoveryResult
}

// candidate is a discovered source before it is persisted.
type candidate struct {
	value      string
	url        string
	sourceType model.SourceType
	sourceName string
	method     string
	evidence   bool
	validated  bool
	outcome    string
}

// field walks one field through unsourced, discovered, validated and
// persisted. Only store errors are returned.
func (r *entityRun) field(ctx context.Context, desc model.FieldDescriptor) error {
	name := string(desc.Name)
	log := zap.L().With(zap.String("entity_id", r.comp.ID), zap.String("field", name))
	log.Debug("discovery: field", zap.String("state", string(model.StateUnsourced)))

	c, ok := r.fromProvider(ctx, name)
	searchFailed := false
	if !ok || (c.url == "" && c.value == "") {
		var err error
		c, ok, err = r.fromSearch(ctx, desc)
		if err != nil {
			log.Warn("discovery: search failed", zap.Error(err))
			r.res.Errors = append(r.res.Errors, eris.Wrapf(err, "discovery: %s search", name).Error())
			searchFailed = true
		}
	}
	// A failed search leaves the field unsourced; the fallback only
	// covers searches that answered without a usable URL.
	if !ok && !searchFailed {
		c, ok = r.fromFallback(ctx, desc)
	}
	if !ok {
		log.Debug("discovery: no source found", zap.String("state", string(model.StateUnsourced)))
		r.d.metrics.DiscoveryOutcome(OutcomeUnsourced)
		return nil
	}
	log.Debug("discovery: field",
		zap.String("state", string(model.StateDiscovered)),
		zap.String("url", c.url),
		zap.String("method", c.method),
	)
	if c.validated {
		log.Debug("discovery: field", zap.String("state", string(model.StateValidated)))
	}

	if err := r.persist(ctx, name, c); err != nil {
		return err
	}
	if c.url != "" {
		r.res.SourcesFound++
	}
	r.d.metrics.DiscoveryOutcome(c.outcome)
	log.Debug("discovery: field",
		zap.String("state", string(model.StatePersisted)),
		zap.String("source_type", string(c.sourceType)),
	)
	return nil
}

// fromProvider uses the merged enterprise value. Its URL is kept only when
// it validates, but the value is kept either way.
func (r *entityRun) fromProvider(ctx context.Context, field string) (candidate, bool) {
	fv, ok := r.fanout.Value(field)
	if !ok {
		return candidate{}, false
	}
	c := candidate{
		value:      fv.Value,
		sourceType: fv.SourceType,
		sourceName: fv.Provider,
		method:     "provider:" + fv.Provider,
		evidence:   true,
		outcome:    OutcomeProvider,
	}
	if fv.SourceURL != "" {
		if u, ok := r.validate(ctx, field, fv.SourceURL); ok {
			c.url, c.validated = u, true
		}
	}
	return c, true
}

// fromSearch asks the grounded search engine. The error is non-nil only
// when the search itself failed.
func (r *entityRun) fromSearch(ctx context.Context, desc model.FieldDescriptor) (candidate, bool, error) {
	if r.d.search == nil {
		return candidate{}, false, nil
	}
	field := string(desc.Name)
	sctx, cancel := context.WithTimeout(ctx, r.d.searchTTL)
	defer cancel()

	ans, err := r.d.search.Ask(sctx, FieldPrompt(r.comp, desc))
	if err != nil {
		return candidate{}, false, err
	}

	var urls []string
	if u := urlcheck.ExtractURL(ans.Text); u != "" {
		urls = append(urls, u)
	}
	urls = append(urls, ans.Citations...)
	for _, raw := range urls {
		u, ok := r.validate(ctx, field, raw)
		if !ok {
			continue
		}
		return candidate{
			value:      r.live[field],
			url:        u,
			sourceType: urlcheck.Classify(u, r.comp.Website),
			sourceName: urlcheck.Host(u),
			method:     "search:" + ans.Provider,
			evidence:   strings.TrimSpace(ans.Text) != "",
			validated:  true,
			outcome:    OutcomeSearch,
		}, true, nil
	}
	return candidate{}, false, nil
}

func (r *entityRun) fromFallback(ctx context.Context, desc model.FieldDescriptor) (candidate, bool) {
	field := string(desc.Name)
	for _, raw := range FallbackURLs(r.comp, desc) {
		u, ok := r.validate(ctx, field, raw)
		if !ok {
			continue
		}
		value := r.live[field]
		return candidate{
			value:      value,
			url:        u,
			sourceType: urlcheck.Classify(u, r.comp.Website),
			sourceName: urlcheck.Host(u),
			method:     "fallback",
			evidence:   value != "",
			validated:  true,
			outcome:    OutcomeFallback,
		}, true
	}
	return candidate{}, false
}

// validate HEAD-checks raw and returns the URL to store.
func (r *entityRun) validate(ctx context.Context, field, raw string) (string, bool) {
	raw = urlcheck.Normalize(raw)
	if raw == "" {
		return "", false
	}
	check := r.d.cache.Validate(ctx, r.d.validator, raw, r.d.headTimeout)
	if !check.Reachable {
		zap.L().Debug("discovery: url rejected",
			zap.String("entity_id", r.comp.ID),
			zap.String("field", field),
			zap.String("url", raw),
			zap.Int("status", check.Status),
			zap.Error(check.Err),
		)
		return "", false
	}
	if check.FinalURL != "" {
		return check.FinalURL, true
	}
	return raw, true
}

// persist upserts the field's provenance row and fills an empty live value.
func (r *entityRun) persist(ctx context.Context, field string, c candidate) error {
	now := r.d.now().UTC()
	score := Confidence(c.sourceType, c.evidence, c.validated)

	row := &model.DataSourceRow{
		EntityID:         r.comp.ID,
		FieldName:        field,
		CurrentValue:     c.value,
		SourceType:       c.sourceType,
		SourceURL:        c.url,
		SourceName:       c.sourceName,
		ConfidenceScore:  score,
		ConfidenceLevel:  model.LevelFor(score),
		ExtractionMethod: c.method,
		ExtractedAt:      &now,
	}
	if prev := r.existing[field]; prev != nil {
		row.ID = prev.ID
		row.PreviousValue = prev.PreviousValue
		if prev.CurrentValue != c.value {
			row.PreviousValue = prev.CurrentValue
		}
		row.IsVerified = prev.IsVerified && prev.CurrentValue == c.value
		if row.IsVerified {
			row.VerifiedBy, row.VerificationDate = prev.VerifiedBy, prev.VerificationDate
		}
	}
	if err := r.d.store.UpsertDataSource(ctx, row); err != nil {
		return eris.Wrapf(err, "discovery: persist %s", field)
	}
	r.existing[field] = row

	if c.value != "" && strings.TrimSpace(r.live[field]) == "" {
		if err := r.d.store.SetFieldValue(ctx, r.comp.ID, field, c.value); err != nil {
			return eris.Wrapf(err, "discovery: fill %s", field)
		}
		r.live[field] = c.value
	}
	return nil
}

// Confidence is the authority of t plus the evidence and validation
// bonuses, clamped to 0..100.
func Confidence(t model.SourceType, evidence, validated bool) float64 {
	s := scoring.Authority(t)
	if evidence {
		s += evidenceBonus
	}
	if validated {
		s += validationBonus
	}
	return scoring.Clamp(s)
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
