package config

import (
	"testing"
	"time"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("THREADAUTO_TEST_UNSET", "")
	if got := GetEnv("THREADAUTO_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("THREADAUTO_TEST_SET", "value")
	if got := GetEnv("THREADAUTO_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("THREADAUTO_TEST_INT", "42")
	if got := GetEnvInt("THREADAUTO_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("THREADAUTO_TEST_INT", "not-a-number")
	if got := GetEnvInt("THREADAUTO_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("THREADAUTO_TEST_BOOL", "true")
	if !GetEnvBool("THREADAUTO_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("THREADAUTO_TEST_BOOL", "nope")
	if GetEnvBool("THREADAUTO_TEST_BOOL", false) {
		t.Fatal("expected default false for unparseable value")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("THREADAUTO_TEST_DUR", "90s")
	if got := GetEnvDuration("THREADAUTO_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv("THREADAUTO_TEST_DUR", "bogus")
	if got := GetEnvDuration("THREADAUTO_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("expected default 1m, got %v", got)
	}
}
