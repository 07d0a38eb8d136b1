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

	"github.com/sells-group/activation-core/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPaymentFailureRate AlertType = "payment_failure_rate"
	AlertConflictBacklog    AlertType = "conflict_backlog"
	AlertOverrideSpike      AlertType = "override_spike"
)

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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check payment failure rate.
	finished := snap.WindowPaid + snap.WindowFailed
	if finished >= 5 && snap.WindowFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertPaymentFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Payment failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.WindowFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.WindowFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.WindowFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.WindowFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Check conflict queue backlog.
	if a.cfg.ConflictDepthThreshold > 0 && snap.ConflictDepth >= a.cfg.ConflictDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertConflictBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d conflicting payment deliveries awaiting review (threshold %d)",
				snap.ConflictDepth, a.cfg.ConflictDepthThreshold,
			),
			Details: map[string]any{
				"conflict_depth": snap.ConflictDepth,
				"threshold":      a.cfg.ConflictDepthThreshold,
			},
			Timestamp: now,
		})
	}

	// Check override spike. Many manual corrections in one window usually
	// means the status mapping or the provider changed under us.
	if a.cfg.OverrideSpikeThreshold > 0 && snap.WindowOverrides >= a.cfg.OverrideSpikeThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertOverrideSpike,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d manual overrides in last %dh (threshold %d)",
				snap.WindowOverrides, snap.LookbackHours, a.cfg.OverrideSpikeThreshold,
			),
			Details: map[string]any{
				"overrides": snap.WindowOverrides,
				"threshold": a.cfg.OverrideSpikeThreshold,
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

// sendWebhook posts a single alert to the webhook URL.
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
