package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowCoverage      AlertType = "low_coverage"
	AlertCorrectionSpike  AlertType = "correction_spike"
	AlertUnverifiableRate AlertType = "unverifiable_rate"
	AlertCostOverrun      AlertType = "cost_overrun"
)

// minCriticalFilled is the sample size below which the unverifiable rate
// is not evaluated.
const minCriticalFilled = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if snap.Competitors > 0 && a.cfg.MinCoveragePercent > 0 && snap.CoveragePercent < a.cfg.MinCoveragePercent {
		alerts = append(alerts, Alert{
			Type:     AlertLowCoverage,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Source coverage %.1f%% is below minimum %.1f%% across %d competitors",
				snap.CoveragePercent, a.cfg.MinCoveragePercent, snap.Competitors,
			),
			Details: map[string]any{
				"coverage_percent": snap.CoveragePercent,
				"minimum_percent":  a.cfg.MinCoveragePercent,
				"competitors":      snap.Competitors,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CorrectionThreshold > 0 && snap.Corrections >= a.cfg.CorrectionThreshold {
		severity := "medium"
		if snap.HighSeverity > 0 {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			Type:     AlertCorrectionSpike,
			Severity: severity,
			Message: fmt.Sprintf(
				"%d corrections (%d high severity) across %d competitors in last %dh",
				snap.Corrections, snap.HighSeverity, snap.CorrectedEntities, snap.LookbackHours,
			),
			Details: map[string]any{
				"corrections":        snap.Corrections,
				"high_severity":      snap.HighSeverity,
				"corrected_entities": snap.CorrectedEntities,
				"threshold":          a.cfg.CorrectionThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.CriticalFilled >= minCriticalFilled && a.cfg.UnverifiableRateThreshold > 0 &&
		snap.UnverifiableRate > a.cfg.UnverifiableRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnverifiableRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of critical fields are unverifiable, threshold %.1f%% (%d of %d)",
				snap.UnverifiableRate*100, a.cfg.UnverifiableRateThreshold*100,
				snap.CriticalUnverifiable, snap.CriticalFilled,
			),
			Details: map[string]any{
				"unverifiable_rate": snap.UnverifiableRate,
				"threshold":         a.cfg.UnverifiableRateThreshold,
				"unverifiable":      snap.CriticalUnverifiable,
				"filled":            snap.CriticalFilled,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.SearchSpendUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Search spend $%.2f exceeds threshold $%.2f",
				snap.SearchSpendUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"spend_usd":     snap.SearchSpendUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
