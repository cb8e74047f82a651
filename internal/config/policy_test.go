package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dispatch-route-service/internal/domain"
)

func TestLoadPolicyMissingFileUsesDefaults(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != DefaultPolicy() {
		t.Fatalf("policy = %+v, want defaults", p)
	}
	if p.Region != domain.BrazilBounds {
		t.Fatalf("default region = %+v, want Brazil", p.Region)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := `
cluster_tolerance: 0.002
skip_weekends: false
backend_timeout: 45s
region:
  min_lat: -1
  min_lng: -2
  max_lat: 1
  max_lng: 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ClusterTolerance != 0.002 {
		t.Errorf("tolerance = %v, want 0.002", p.ClusterTolerance)
	}
	if p.SkipWeekends {
		t.Errorf("skip_weekends should be false")
	}
	if p.BackendTimeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", p.BackendTimeout)
	}
	if p.Region != (domain.BoundingBox{MinLat: -1, MinLng: -2, MaxLat: 1, MaxLng: 2}) {
		t.Errorf("region = %+v", p.Region)
	}
	// untouched keys keep their defaults
	if p.BulkConcurrency != DefaultPolicy().BulkConcurrency {
		t.Errorf("bulk concurrency = %d, want default", p.BulkConcurrency)
	}
}

func TestLoadPolicyRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("cluster_tolerance: -1\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("expected error for negative tolerance")
	}
}
