package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// durationGrammar is the small constrained grammar spec.md §9 requires:
// a bare integer followed by "m" or "h". Zero-duration stages are valid
// (used for the terminal 100% stage).
var durationGrammar = regexp.MustCompile(`^\d+(m|h)$`)

// BurnRateThresholds buckets a deployment's ErrorBudget.status.
type BurnRateThresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ErrorBudgetPolicy is the SLO and budget-window configuration applied
// unless a service overrides it.
type ErrorBudgetPolicy struct {
	Availability      float64            `yaml:"availability"`
	BudgetWindowHours int                `yaml:"budgetWindowHours"`
	BurnRateThresholds BurnRateThresholds `yaml:"burnRateThresholds"`
}

// RollbackCriterion is one rollback-gate rule, evaluated in declared order.
type RollbackCriterion struct {
	Metric    string  `yaml:"metric"`
	Threshold float64 `yaml:"threshold"`
}

// RollbackPolicy is the ordered list of rollback rules plus the manual
// approval gate.
type RollbackPolicy struct {
	Criteria               []RollbackCriterion `yaml:"criteria"`
	ManualApprovalRequired bool                `yaml:"manualApprovalRequired"`
}

// StagePolicy is one row of the progressive-rollout table.
type StagePolicy struct {
	Weight        float64 `yaml:"weight"`
	Duration      string  `yaml:"duration"`
	MinSampleSize int     `yaml:"minSampleSize"`
}

// MinDuration parses Duration using the constrained m/h grammar.
func (s StagePolicy) MinDuration() (time.Duration, error) {
	return parsePolicyDuration(s.Duration)
}

func parsePolicyDuration(s string) (time.Duration, error) {
	if !durationGrammar.MatchString(s) {
		return 0, fmt.Errorf("duration %q does not match the required grammar ^\\d+(m|h)$", s)
	}
	return time.ParseDuration(s)
}

// GlobalPolicy holds defaults applied to every service unless overridden.
type GlobalPolicy struct {
	ErrorBudget ErrorBudgetPolicy `yaml:"errorBudget"`
	Rollback    RollbackPolicy    `yaml:"rollback"`
	Stages      []StagePolicy     `yaml:"stages"`
}

// ServicePolicy is a per-service override of the global defaults.
type ServicePolicy struct {
	Enabled  bool            `yaml:"enabled"`
	Stages   []StagePolicy   `yaml:"stages"`
	Rollback *RollbackPolicy `yaml:"rollback"`
	Regions  []string        `yaml:"regions"`
}

// FeatureFlagsPolicy names the external traffic-router provider.
type FeatureFlagsPolicy struct {
	Provider string `yaml:"provider"`
}

// MonitoringPolicy is passed through to the Metric Source Adapter; its
// shape is provider-specific and kept as a free-form map.
type MonitoringPolicy map[string]interface{}

// SlackChannelPolicy is one configured Slack destination and its event
// filter.
type SlackChannelPolicy struct {
	Name   string   `yaml:"name"`
	Events []string `yaml:"events"`
}

// SlackNotificationPolicy configures the Slack notification channel.
type SlackNotificationPolicy struct {
	Enabled  bool                 `yaml:"enabled"`
	Channels []SlackChannelPolicy `yaml:"channels"`
}

// PagerDutyNotificationPolicy configures the PagerDuty notification channel.
type PagerDutyNotificationPolicy struct {
	Enabled        bool     `yaml:"enabled"`
	IntegrationKey string   `yaml:"integrationKey"`
	Events         []string `yaml:"events"`
}

// EmailNotificationPolicy configures the email notification channel.
type EmailNotificationPolicy struct {
	Enabled    bool     `yaml:"enabled"`
	Recipients []string `yaml:"recipients"`
	Events     []string `yaml:"events"`
}

// NotificationsPolicy wires the three supported channels.
type NotificationsPolicy struct {
	Slack     *SlackNotificationPolicy     `yaml:"slack"`
	PagerDuty *PagerDutyNotificationPolicy `yaml:"pagerduty"`
	Email     *EmailNotificationPolicy     `yaml:"email"`
}

// Policy is the full operator-authored YAML document from spec.md §6.
type Policy struct {
	Global        GlobalPolicy             `yaml:"global"`
	Services      map[string]ServicePolicy `yaml:"services"`
	FeatureFlags  FeatureFlagsPolicy       `yaml:"featureFlags"`
	Monitoring    MonitoringPolicy         `yaml:"monitoring"`
	Notifications NotificationsPolicy      `yaml:"notifications"`
}

// LoadPolicy reads and validates the policy document at path.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &p, nil
}

func (p *Policy) validate() error {
	for _, stage := range p.Global.Stages {
		if _, err := stage.MinDuration(); err != nil {
			return fmt.Errorf("global stage: %w", err)
		}
	}
	if len(p.Global.Stages) > 0 {
		last := p.Global.Stages[len(p.Global.Stages)-1]
		if last.Weight != 1.0 {
			return fmt.Errorf("last global stage weight must be 1.0, got %v", last.Weight)
		}
	}
	for name, svc := range p.Services {
		for _, stage := range svc.Stages {
			if _, err := stage.MinDuration(); err != nil {
				return fmt.Errorf("service %s stage: %w", name, err)
			}
		}
		if len(svc.Stages) > 0 {
			last := svc.Stages[len(svc.Stages)-1]
			if last.Weight != 1.0 {
				return fmt.Errorf("service %s: last stage weight must be 1.0, got %v", name, last.Weight)
			}
		}
	}
	return nil
}

// StagesFor resolves the effective stage table for a service: its own
// override if present, otherwise the global default.
func (p *Policy) StagesFor(service string) []StagePolicy {
	if svc, ok := p.Services[service]; ok && len(svc.Stages) > 0 {
		return svc.Stages
	}
	return p.Global.Stages
}

// RollbackFor resolves the effective rollback policy for a service.
func (p *Policy) RollbackFor(service string) RollbackPolicy {
	if svc, ok := p.Services[service]; ok && svc.Rollback != nil {
		return *svc.Rollback
	}
	return p.Global.Rollback
}

// ErrorBudgetFor resolves the effective error-budget policy for a service.
// Services do not currently override error-budget policy independent of
// rollback policy, so this always returns the global default; the method
// exists so callers have one place to change if that changes.
func (p *Policy) ErrorBudgetFor(service string) ErrorBudgetPolicy {
	return p.Global.ErrorBudget
}

// RegionAllowed reports whether region is permitted for service. An empty
// allow-list means all regions are permitted.
func (p *Policy) RegionAllowed(service, region string) bool {
	svc, ok := p.Services[service]
	if !ok || len(svc.Regions) == 0 {
		return true
	}
	for _, r := range svc.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// ServiceEnabled reports whether service is canary-enabled.
func (p *Policy) ServiceEnabled(service string) bool {
	svc, ok := p.Services[service]
	return ok && svc.Enabled
}

// ManualApprovalRequired reports whether rollbacks for service require an
// operator to confirm before traffic is cut to zero.
func (p *Policy) ManualApprovalRequired(service string) bool {
	return p.RollbackFor(service).ManualApprovalRequired
}
