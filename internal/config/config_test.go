package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "default delivery concurrency is 16",
			check:  func(c *Config) bool { return c.DeliveryConcurrency == 16 },
			expect: "16",
		},
		{
			name:   "default deployment retention is 24h",
			check:  func(c *Config) bool { return c.DeploymentRetention == "24h" },
			expect: "24h",
		},
		{
			name:   "default monitor interval is 30s",
			check:  func(c *Config) bool { return c.MonitorInterval == "30s" },
			expect: "30s",
		},
		{
			name:   "default delivery poll interval is 5s",
			check:  func(c *Config) bool { return c.DeliveryPollInterval == "5s" },
			expect: "5s",
		},
		{
			name:   "default delivery batch size is 50",
			check:  func(c *Config) bool { return c.DeliveryBatchSize == 50 },
			expect: "50",
		},
		{
			name:   "default delivery max attempts is 5",
			check:  func(c *Config) bool { return c.DeliveryMaxAttempts == 5 },
			expect: "5",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestPartnerOAuthCredentialMissing(t *testing.T) {
	cfg := &Config{}
	_, _, _, ok := cfg.PartnerOAuthCredential("benevity")
	if ok {
		t.Fatal("expected ok=false for unconfigured partner")
	}
}

func TestPartnerOAuthCredentialPresent(t *testing.T) {
	cfg := &Config{
		PartnerOAuthClientIDs:     map[string]string{"benevity": "id1"},
		PartnerOAuthClientSecrets: map[string]string{"benevity": "secret1"},
		PartnerTokenURLs:          map[string]string{"benevity": "https://auth.benevity.example/token"},
	}
	id, secret, url, ok := cfg.PartnerOAuthCredential("benevity")
	if !ok || id != "id1" || secret != "secret1" || url != "https://auth.benevity.example/token" {
		t.Fatalf("unexpected credential: id=%s secret=%s url=%s ok=%v", id, secret, url, ok)
	}
}

func TestPartnerRateLimitFallsBackToDefault(t *testing.T) {
	cfg := &Config{}
	rps, burst := cfg.PartnerRateLimit("benevity")
	if rps != defaultPartnerRPS || burst != defaultPartnerBurst {
		t.Fatalf("expected default rate limit, got rps=%v burst=%v", rps, burst)
	}
}

func TestPartnerRateLimitUsesOverride(t *testing.T) {
	cfg := &Config{
		PartnerRateLimitRPS:   map[string]float64{"benevity": 20},
		PartnerRateLimitBurst: map[string]int{"benevity": 40},
	}
	rps, burst := cfg.PartnerRateLimit("benevity")
	if rps != 20 || burst != 40 {
		t.Fatalf("expected overridden rate limit, got rps=%v burst=%v", rps, burst)
	}
}

func TestPartnerKindsListsConfiguredEndpoints(t *testing.T) {
	cfg := &Config{PartnerEndpoints: map[string]string{"benevity": "https://api.benevity.example", "percent": "https://api.percent.example"}}
	kinds := cfg.PartnerKinds()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 partner kinds, got %d", len(kinds))
	}
}
