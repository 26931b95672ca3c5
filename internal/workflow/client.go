package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
)

// Dial connects to the Temporal frontend named in cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// TaskQueue returns the configured queue or DefaultTaskQueue.
func TaskQueue(cfg config.TemporalConfig) string {
	if cfg.TaskQueue == "" {
		return DefaultTaskQueue
	}
	return cfg.TaskQueue
}

// NewWorker registers the refresh workflow and acts on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(RefreshCompetitorWorkflow)
	w.RegisterActivity(acts)
	return w
}

// Start launches one refresh and returns its run ID.
func Start(ctx context.Context, c client.Client, taskQueue string, in RefreshInput) (string, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "refresh-" + in.EntityID,
		TaskQueue: taskQueue,
	}, RefreshCompetitorWorkflow, in)
	if err != nil {
		return "", eris.Wrapf(err, "workflow: start refresh %s", in.EntityID)
	}
	zap.L().Info("workflow: refresh started",
		zap.String("entity_id", in.EntityID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return run.GetRunID(), nil
}

// Schedule creates a recurring refresh for one competitor.
func Schedule(ctx context.Context, c client.Client, taskQueue string, in RefreshInput, every time.Duration) (string, error) {
	if every <= 0 {
		return "", eris.New("workflow: schedule interval must be positive")
	}
	id := "refresh-schedule-" + in.EntityID
	h, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "refresh-" + in.EntityID,
			Workflow:  RefreshCompetitorWorkflow,
			Args:      []any{in},
			TaskQueue: taskQueue,
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "workflow: create schedule %s", id)
	}
	zap.L().Info("workflow: schedule created",
		zap.String("schedule_id", h.GetID()),
		zap.Duration("every", every),
	)
	return h.GetID(), nil
}
