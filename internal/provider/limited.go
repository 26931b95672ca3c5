package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/competitor-intel/internal/model"
)

// Limited caps calls to a provider at perMinute per minute. Callers over
// the limit wait for capacity rather than fail.
type Limited struct {
	inner   FieldValueProvider
	limiter *rate.Limiter
}

// NewLimited wraps p. The bucket starts full (burst = perMinute) and
// refills at perMinute per minute. perMinute <= 0 disables limiting.
func NewLimited(p FieldValueProvider, perMinute int) *Limited {
	l := &Limited{inner: p}
	if perMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return l
}

func (l *Limited) Name() string                 { return l.inner.Name() }
func (l *Limited) SourceType() model.SourceType { return l.inner.SourceType() }

// QueryEntity waits for capacity, then delegates.
func (l *Limited) QueryEntity(ctx context.Context, name string) (*Result, error) {
	if err := l.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.QueryEntity(ctx, name)
}

// Wait blocks until one call's worth of capacity is available.
func (l *Limited) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "provider: %s rate limit", l.inner.Name())
	}
	return nil
}

// Unwrap returns the provider without its limiter.
func (l *Limited) Unwrap() FieldValueProvider { return l.inner }

// throttled is a provider whose capacity is reserved separately from the
// call, so time spent queueing does not count against the call timeout.
type throttled interface {
	Wait(ctx context.Context) error
	Unwrap() FieldValueProvider
}
