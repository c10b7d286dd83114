package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfp-ingest/internal/config"
)

func TestAlerter_Evaluate(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.10, StuckAfterMins: 30}

	tests := []struct {
		name string
		snap Snapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: Snapshot{BatchesComplete: 19, BatchesError: 1, BatchErrorRate: 0.05, FilesSucceeded: 40, FilesFailed: 2, FileFailureRate: 0.047},
		},
		{
			name: "batch error rate",
			snap: Snapshot{BatchesComplete: 6, BatchesError: 4, BatchErrorRate: 0.4, FilesSucceeded: 50},
			want: []AlertType{AlertBatchErrorRate},
		},
		{
			name: "small sample ignored",
			snap: Snapshot{BatchesComplete: 1, BatchesError: 2, BatchErrorRate: 0.66, FilesFailed: 2, FileFailureRate: 1},
		},
		{
			name: "file failure rate",
			snap: Snapshot{BatchesComplete: 10, FilesSucceeded: 6, FilesFailed: 4, FileFailureRate: 0.4},
			want: []AlertType{AlertFileFailureRate},
		},
		{
			name: "stuck batches",
			snap: Snapshot{BatchesRunning: 3, BatchesStuck: 2},
			want: []AlertType{AlertStuckBatches},
		},
		{
			name: "everything",
			snap: Snapshot{
				BatchesComplete: 5, BatchesError: 5, BatchErrorRate: 0.5,
				FilesSucceeded: 5, FilesFailed: 5, FileFailureRate: 0.5,
				BatchesStuck: 1,
			},
			want: []AlertType{AlertBatchErrorRate, AlertFileFailureRate, AlertStuckBatches},
		},
	}

	a := NewAlerter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			snap.LookbackHours = 24
			var got []AlertType
			for _, alert := range a.Evaluate(&snap) {
				got = append(got, alert.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_Evaluate_Message(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})
	alerts := a.Evaluate(&Snapshot{BatchesComplete: 12, BatchesError: 8, BatchErrorRate: 0.4, LookbackHours: 24})

	require.Len(t, alerts, 1)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "8 errored / 20 finished in last 24h")
}

func TestAlerter_SendAlerts(t *testing.T) {
	received := make(chan Alert, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received <- alert
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBatchErrorRate, Severity: "high", Message: "a"},
		{Type: AlertStuckBatches, Severity: "medium", Message: "b"},
	})

	assert.Equal(t, 2, sent)
	require.Len(t, received, 2)
	assert.Equal(t, AlertBatchErrorRate, (<-received).Type)
	assert.Equal(t, AlertStuckBatches, (<-received).Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertBatchErrorRate}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertBatchErrorRate}}))
}
