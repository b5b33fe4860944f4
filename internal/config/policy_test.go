package config

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePolicy = `
global:
  errorBudget:
    availability: 99.9
    budgetWindowHours: 24
    burnRateThresholds: {warning: 3, critical: 6}
  rollback:
    criteria:
      - {metric: error_rate, threshold: 0.05}
      - {metric: latency_p95, threshold: 300}
      - {metric: availability, threshold: 99.0}
      - {metric: budget_burn_rate, threshold: 6}
  stages:
    - {weight: 0.01, duration: "5m", minSampleSize: 100}
    - {weight: 0.05, duration: "5m", minSampleSize: 100}
    - {weight: 0.25, duration: "10m", minSampleSize: 500}
    - {weight: 1.0, duration: "0m", minSampleSize: 0}
services:
  api:
    enabled: true
    regions: [us-east-1, us-west-2]
    rollback:
      manualApprovalRequired: true
  checkout:
    enabled: true
featureFlags:
  provider: launchdarkly
notifications:
  slack:
    enabled: true
    channels:
      - {name: "#deploys", events: ["all"]}
  pagerduty:
    enabled: true
    integrationKey: abc123
    events: ["rollback"]
`

func writeTempPolicy(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp policy: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writeTempPolicy(t, samplePolicy)

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}

	if p.Global.ErrorBudget.Availability != 99.9 {
		t.Errorf("expected availability 99.9, got %v", p.Global.ErrorBudget.Availability)
	}
	if len(p.Global.Stages) != 4 {
		t.Fatalf("expected 4 global stages, got %d", len(p.Global.Stages))
	}
	if !p.ServiceEnabled("api") {
		t.Error("expected service api to be canary-enabled")
	}
	if p.ServiceEnabled("unknown") {
		t.Error("expected unknown service to be disabled")
	}
	if !p.ManualApprovalRequired("api") {
		t.Error("expected api to require manual approval")
	}
	if p.ManualApprovalRequired("checkout") {
		t.Error("expected checkout not to require manual approval")
	}
	if !p.RegionAllowed("api", "us-east-1") {
		t.Error("expected us-east-1 to be allowed for api")
	}
	if p.RegionAllowed("api", "eu-west-1") {
		t.Error("expected eu-west-1 not to be allowed for api")
	}
	if !p.RegionAllowed("checkout", "anywhere") {
		t.Error("expected checkout with no region allow-list to permit any region")
	}
	stages := p.StagesFor("checkout")
	if len(stages) != 4 {
		t.Fatalf("expected checkout to inherit 4 global stages, got %d", len(stages))
	}
}

func TestLoadPolicyRejectsBadDuration(t *testing.T) {
	bad := `
global:
  stages:
    - {weight: 1.0, duration: "5 minutes", minSampleSize: 0}
`
	path := writeTempPolicy(t, bad)
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error for malformed duration grammar")
	}
}

func TestLoadPolicyRejectsNonTerminalStageTable(t *testing.T) {
	bad := `
global:
  stages:
    - {weight: 0.5, duration: "5m", minSampleSize: 10}
`
	path := writeTempPolicy(t, bad)
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error when last stage weight is not 1.0")
	}
}

func TestStagePolicyMinDuration(t *testing.T) {
	s := StagePolicy{Duration: "5m"}
	d, err := s.MinDuration()
	if err != nil {
		t.Fatalf("MinDuration() error: %v", err)
	}
	if d.Minutes() != 5 {
		t.Errorf("expected 5 minutes, got %v", d)
	}
}
