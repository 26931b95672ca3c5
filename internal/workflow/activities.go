package workflow

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/verify"
)

// Activities delegates refresh steps to the engine.
type Activities struct {
	Discoverer *discovery.Discoverer
	Verifier   *verify.Verifier
}

// Discover runs one discovery pass. An aborted run is returned as a
// retryable error so Temporal retries it under the activity policy.
func (a *Activities) Discover(ctx context.Context, in RefreshInput) (*model.DiscoveryResult, error) {
	if in.EntityID == "" {
		return nil, temporal.NewNonRetryableApplicationError("entity id is required", errInvalidInput, nil)
	}
	opts := discovery.Options{MaxFields: in.MaxFields}
	if in.Priority != "" {
		tier, err := model.ParseTier(in.Priority)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), errInvalidInput, err)
		}
		opts.Priority = &tier
	}

	res := a.Discoverer.DiscoverSources(ctx, in.EntityID, opts)
	if res.Aborted {
		return nil, eris.Errorf("workflow: discovery aborted for %s: %s", in.EntityID, strings.Join(res.Errors, "; "))
	}
	zap.L().Info("workflow: discovery activity done",
		zap.String("entity_id", in.EntityID),
		zap.Int("sources_found", res.SourcesFound),
	)
	return res, nil
}

// Verify runs one verification pass.
func (a *Activities) Verify(ctx context.Context, entityID string) (*model.VerificationSummary, error) {
	if a.Verifier == nil {
		return nil, temporal.NewNonRetryableApplicationError("verification is not configured", errInvalidInput, nil)
	}
	sum := a.Verifier.VerifyAndCorrect(ctx, entityID)
	if sum.Aborted {
		return nil, eris.Errorf("workflow: verification aborted for %s: %s", entityID, strings.Join(sum.Errors, "; "))
	}
	zap.L().Info("workflow: verify activity done",
		zap.String("entity_id", entityID),
		zap.Int("corrected", sum.FieldsCorrected),
	)
	return sum, nil
}
