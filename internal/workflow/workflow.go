// Package workflow runs competitor refreshes on Temporal: source discovery
// followed by optional verification, each as a retried activity.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	temporalwf "go.temporal.io/sdk/workflow"

	"github.com/sells-group/competitor-intel/internal/model"
)

// DefaultTaskQueue is used when the config leaves temporal.task_queue empty.
const DefaultTaskQueue = "competitor-refresh"

// errInvalidInput marks activity failures that retrying cannot fix.
const errInvalidInput = "InvalidInput"

// RefreshInput selects what a refresh does for one competitor.
type RefreshInput struct {
	EntityID  string `json:"entity_id"`
	Priority  string `json:"priority,omitempty"`
	MaxFields int    `json:"max_fields,omitempty"`
	Verify    bool   `json:"verify"`
}

// RefreshResult carries the run summaries. Verification is nil when the
// input did not ask for it.
type RefreshResult struct {
	Discovery    *model.DiscoveryResult     `json:"discovery"`
	Verification *model.VerificationSummary `json:"verification,omitempty"`
}

var discoveryOptions = temporalwf.ActivityOptions{
	StartToCloseTimeout: 30 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        30 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        10 * time.Minute,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: []string{errInvalidInput},
	},
}

var verifyOptions = temporalwf.ActivityOptions{
	StartToCloseTimeout: 20 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        time.Minute,
		BackoffCoefficient:     2,
		MaximumInterval:        10 * time.Minute,
		MaximumAttempts:        2,
		NonRetryableErrorTypes: []string{errInvalidInput},
	},
}

// RefreshCompetitorWorkflow discovers sources for one competitor and, when
// asked, verifies its critical fields afterwards. A failed discovery ends
// the workflow without verifying.
func RefreshCompetitorWorkflow(ctx temporalwf.Context, in RefreshInput) (*RefreshResult, error) {
	logger := temporalwf.GetLogger(ctx)
	logger.Info("refresh started", "entity_id", in.EntityID, "priority", in.Priority, "verify", in.Verify)

	var a *Activities
	out := &RefreshResult{}

	dctx := temporalwf.WithActivityOptions(ctx, discoveryOptions)
	if err := temporalwf.ExecuteActivity(dctx, a.Discover, in).Get(ctx, &out.Discovery); err != nil {
		return nil, err
	}

	if in.Verify {
		vctx := temporalwf.WithActivityOptions(ctx, verifyOptions)
		if err := temporalwf.ExecuteActivity(vctx, a.Verify, in.EntityID).Get(ctx, &out.Verification); err != nil {
			return out, err
		}
	}

	logger.Info("refresh complete",
		"entity_id", in.EntityID,
		"sources_found", out.Discovery.SourcesFound,
	)
	return out, nil
}
