// Package monitoring sends operator alerts for failed ingestion cycles and
// stale price history.
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

	"github.com/sells-group/copper-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCycleFailure AlertType = "cycle_failure"
	AlertStalePrice   AlertType = "stale_price"
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
// and sends alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate reports every expected region whose newest record is older than
// StaleAfterDays, or that has no records at all.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	if a.cfg.StaleAfterDays <= 0 {
		return nil
	}

	var alerts []Alert
	now := a.now().UTC()
	for _, region := range snap.Expected {
		m, ok := snap.Regions[region]
		if !ok || m.LatestDate == "" {
			alerts = append(alerts, Alert{
				Type:      AlertStalePrice,
				Severity:  "high",
				Message:   fmt.Sprintf("No price records for %s", region),
				Details:   map[string]any{"region": region},
				Timestamp: now,
			})
			continue
		}
		if m.AgeDays > a.cfg.StaleAfterDays {
			alerts = append(alerts, Alert{
				Type:     AlertStalePrice,
				Severity: "medium",
				Message: fmt.Sprintf("Latest %s price is %d days old (%s), threshold %d days",
					region, m.AgeDays, m.LatestDate, a.cfg.StaleAfterDays),
				Details: map[string]any{
					"region":      region,
					"latest_date": m.LatestDate,
					"age_days":    m.AgeDays,
					"threshold":   a.cfg.StaleAfterDays,
				},
				Timestamp: now,
			})
		}
	}
	return alerts
}

// CycleFailed sends an alert for an ingestion cycle that ended in error.
func (a *Alerter) CycleFailed(ctx context.Context, mode string, cause error) {
	a.SendAlerts(ctx, []Alert{{
		Type:     AlertCycleFailure,
		Severity: "high",
		Message:  fmt.Sprintf("Copper price %s failed: %v", mode, cause),
		Details: map[string]any{
			"mode":  mode,
			"error": cause.Error(),
		},
		Timestamp: a.now().UTC(),
	}})
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
