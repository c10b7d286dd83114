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

	"github.com/sells-group/rfp-ingest/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBatchErrorRate  AlertType = "batch_error_rate"
	AlertFileFailureRate AlertType = "file_failure_rate"
	AlertStuckBatches    AlertType = "stuck_batches"
)

// minSample is the number of finished items below which rates are ignored.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and posts
// alerts to a webhook.
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
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.BatchesComplete + snap.BatchesError
	if finished >= minSample && snap.BatchErrorRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertBatchErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Batch error rate %.1f%% exceeds threshold %.1f%% (%d errored / %d finished in last %dh)",
				snap.BatchErrorRate*100, a.cfg.FailureRateThreshold*100,
				snap.BatchesError, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"error_rate": snap.BatchErrorRate,
				"threshold":  a.cfg.FailureRateThreshold,
				"errored":    snap.BatchesError,
				"finished":   finished,
			},
			Timestamp: now,
		})
	}

	files := snap.FilesSucceeded + snap.FilesFailed
	if files >= minSample && snap.FileFailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFileFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"File failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d files in last %dh)",
				snap.FileFailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.FilesFailed, files, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FileFailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.FilesFailed,
				"files":        files,
			},
			Timestamp: now,
		})
	}

	if snap.BatchesStuck > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStuckBatches,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d batch(es) running without progress for over %dm",
				snap.BatchesStuck, a.cfg.StuckAfterMins,
			),
			Details: map[string]any{
				"stuck":   snap.BatchesStuck,
				"running": snap.BatchesRunning,
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
