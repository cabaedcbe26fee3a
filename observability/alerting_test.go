package observability

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func TestTriggerAlertNoopsWhenDisabled(t *testing.T) {
	cfg := DefaultPagerDutyConfig()
	pd := NewPagerDutyClient(cfg, zerolog.New(io.Discard))

	if err := pd.TriggerAlert(PDSeverityCritical, "test", "dedup-1", nil); err != nil {
		t.Fatalf("expected no error when alerting is disabled, got %v", err)
	}
}

func TestTriggerAlertNoopsWithoutRoutingKey(t *testing.T) {
	cfg := DefaultPagerDutyConfig()
	cfg.Enabled = true
	pd := NewPagerDutyClient(cfg, zerolog.New(io.Discard))

	if err := pd.TriggerAlert(PDSeverityWarning, "test", "dedup-2", nil); err != nil {
		t.Fatalf("expected no error without a routing key configured, got %v", err)
	}
}

func TestResolveAlertNoopsWhenDisabled(t *testing.T) {
	cfg := DefaultPagerDutyConfig()
	pd := NewPagerDutyClient(cfg, zerolog.New(io.Discard))

	if err := pd.ResolveAlert("dedup-3"); err != nil {
		t.Fatalf("expected no error when alerting is disabled, got %v", err)
	}
}

func TestAlertWorkerFailedNoopsWhenDisabled(t *testing.T) {
	cfg := DefaultPagerDutyConfig()
	pd := NewPagerDutyClient(cfg, zerolog.New(io.Discard))

	if err := pd.AlertWorkerFailed("cf-trainer", "boom"); err != nil {
		t.Fatalf("expected no error when alerting is disabled, got %v", err)
	}
}

func TestDefaultPagerDutyConfigIsDisabledByDefault(t *testing.T) {
	cfg := DefaultPagerDutyConfig()
	if cfg.Enabled {
		t.Fatal("expected alerting to default to disabled until a routing key is configured")
	}
	if cfg.SourceName != "feedcore" {
		t.Fatalf("expected default source name feedcore, got %q", cfg.SourceName)
	}
}
