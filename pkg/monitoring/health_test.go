package monitoring

import (
	"testing"
)

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("threadauto", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	if got := hc.CheckHealth().Status; got != StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	hc.AddCheck("degraded", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
}

func TestDatabaseHealthCheckNilDB(t *testing.T) {
	check := DatabaseHealthCheck(nil)
	result := check()
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded without database, got %s", result.Status)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{"LLM_API_KEY": ""})
	if got := check().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy for missing config, got %s", got)
	}

	check = ConfigurationHealthCheck(map[string]string{"LLM_API_KEY": "set"})
	if got := check().Status; got != StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
}
