package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker collects a snapshot on every tick and posts any breached
// thresholds. An alert type that already fired is held back until the
// lookback window has passed, so a lasting breach is reported once per
// window rather than once per tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run checks once immediately, then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("data health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		c.check(ctx, log)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("data health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check returns the number of alerts delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect snapshot", zap.Error(err))
		return 0
	}

	due := c.due(c.alerter.Evaluate(snap))
	if len(due) == 0 {
		log.Debug("monitoring: no new alerts",
			zap.Float64("coverage_percent", snap.CoveragePercent),
			zap.Int("corrections", snap.Corrections),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, due)
	if sent == len(due) {
		now := c.now()
		for _, a := range due {
			c.lastSent[a.Type] = now
		}
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_due", len(due)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// due drops alerts whose type was delivered within the lookback window.
func (c *Checker) due(alerts []Alert) []Alert {
	hold := time.Duration(c.cfg.LookbackWindowHours) * time.Hour
	now := c.now()
	var out []Alert
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < hold {
			continue
		}
		out = append(out, a)
	}
	return out
}
