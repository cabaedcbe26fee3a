package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig holds configuration for PagerDuty Events API v2,
// used to page on-call when a ranking pipeline component fails.
type PagerDutyConfig struct {
	// RoutingKey is the PagerDuty Events API v2 integration key.
	RoutingKey string
	// Enabled controls whether alerts are sent.
	Enabled bool
	// SourceName identifies this deployment (e.g. "feedcore-prod-01").
	SourceName string
	// HTTPTimeout for the PagerDuty API call.
	HTTPTimeout time.Duration
}

// DefaultPagerDutyConfig returns defaults.
func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		RoutingKey:  "",
		Enabled:     false,
		SourceName:  "feedcore",
		HTTPTimeout: 10 * time.Second,
	}
}

// PagerDutySeverity maps to PagerDuty alert severity.
type PagerDutySeverity string

const (
	PDSeverityCritical PagerDutySeverity = "critical"
	PDSeverityError    PagerDutySeverity = "error"
	PDSeverityWarning  PagerDutySeverity = "warning"
	PDSeverityInfo     PagerDutySeverity = "info"
)

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NewPagerDutyClient creates a PagerDuty alerting client.
func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert.
func (pd *PagerDutyClient) TriggerAlert(
	severity PagerDutySeverity,
	summary string,
	dedupKey string,
	details map[string]interface{},
) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Debug().Str("summary", summary).Msg("alerting disabled — alert suppressed")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":         summary,
			"severity":        string(severity),
			"source":          pd.cfg.SourceName,
			"component":       "feedcore",
			"group":           "ranking-pipeline",
			"class":           "infrastructure",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"custom_details":  details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerting: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("alerting API call failed")
		return fmt.Errorf("alerting: API call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("alerting API error")
		return fmt.Errorf("alerting: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("alert triggered")
	return nil
}

// ResolveAlert resolves a previously triggered alert.
func (pd *PagerDutyClient) ResolveAlert(dedupKey string) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "resolve",
		"dedup_key":    dedupKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerting: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerting: resolve call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	pd.logger.Info().Str("dedup_key", dedupKey).Msg("alert resolved")
	return nil
}

// ─── Convenience Wrappers for Ranking-Pipeline Alerts ───────

// AlertWorkerFailed fires when a batch worker (popularity aggregator
// or CF trainer) run fails outright.
func (pd *PagerDutyClient) AlertWorkerFailed(worker string, errMsg string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("feedcore: %s run failed", worker),
		fmt.Sprintf("feedcore-worker-failed-%s", worker),
		map[string]interface{}{
			"worker": worker,
			"error":  errMsg,
		},
	)
}

// AlertWorkerRecovered resolves a worker-failed alert.
func (pd *PagerDutyClient) AlertWorkerRecovered(worker string) error {
	return pd.ResolveAlert(fmt.Sprintf("feedcore-worker-failed-%s", worker))
}

// AlertEventBacklog fires when the event queue's consumer falls behind,
// risking stale session trails and bandit posteriors.
func (pd *PagerDutyClient) AlertEventBacklog(queueDepth int, threshold int) error {
	return pd.TriggerAlert(
		PDSeverityError,
		fmt.Sprintf("feedcore: event backlog at %d (threshold %d)", queueDepth, threshold),
		"feedcore-event-backlog",
		map[string]interface{}{
			"queue_depth": queueDepth,
			"threshold":   threshold,
		},
	)
}

// AlertHighErrorRate fires when the feed API error rate exceeds threshold.
func (pd *PagerDutyClient) AlertHighErrorRate(errorPct float64, window string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("feedcore: /feed error rate %.1f%% over %s", errorPct, window),
		"feedcore-high-error-rate",
		map[string]interface{}{
			"error_percentage": errorPct,
			"window":           window,
		},
	)
}

// AlertCacheDegraded fires when the feature cache is returning errors
// at a rate that degrades ranking quality (candidates falling back to
// store reads and losing the bandit/personalization terms).
func (pd *PagerDutyClient) AlertCacheDegraded(errorPct float64) error {
	return pd.TriggerAlert(
		PDSeverityWarning,
		fmt.Sprintf("feedcore: feature cache error rate %.1f%%", errorPct),
		"feedcore-cache-degraded",
		map[string]interface{}{
			"error_percentage": errorPct,
		},
	)
}
