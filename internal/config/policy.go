package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"dispatch-route-service/internal/domain"

	"gopkg.in/yaml.v3"
)

// Policy holds business constants that are tunable per deployment.
type Policy struct {
	// Grid size in degrees used for clustering (0.001 ≈ 100 m).
	ClusterTolerance float64            `yaml:"cluster_tolerance"`
	Region           domain.BoundingBox `yaml:"region"`
	// Skip Saturday and Sunday when computing the default forecast date.
	SkipWeekends bool `yaml:"skip_weekends"`

	BackendTimeout    time.Duration `yaml:"backend_timeout"`
	BackendRateLimit  float64       `yaml:"backend_rate_limit"`
	BackendBurst      int           `yaml:"backend_burst"`
	BulkConcurrency   int           `yaml:"bulk_concurrency"`
	PrefetchWorkers   int           `yaml:"prefetch_workers"`
	ReadRetryAttempts int           `yaml:"read_retry_attempts"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		ClusterTolerance:  0.001,
		Region:            domain.BrazilBounds,
		SkipWeekends:      true,
		BackendTimeout:    30 * time.Second,
		BackendRateLimit:  20,
		BackendBurst:      10,
		BulkConcurrency:   8,
		PrefetchWorkers:   6,
		ReadRetryAttempts: 4,
	}
}

// LoadPolicy overlays the YAML file at path onto DefaultPolicy.
// A missing file yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("policy file %q not found (using defaults)", path)
		return p, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("load policy: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("load policy: parse %q: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("load policy: %q: %w", path, err)
	}

	return p, nil
}

func (p Policy) Validate() error {
	if p.ClusterTolerance <= 0 {
		return fmt.Errorf("cluster_tolerance must be positive, got %v", p.ClusterTolerance)
	}
	if p.Region.MinLat > p.Region.MaxLat || p.Region.MinLng > p.Region.MaxLng {
		return fmt.Errorf("region min must not exceed max: %+v", p.Region)
	}
	if p.BackendTimeout <= 0 {
		return fmt.Errorf("backend_timeout must be positive, got %v", p.BackendTimeout)
	}
	if p.BulkConcurrency < 1 || p.PrefetchWorkers < 1 {
		return fmt.Errorf("bulk_concurrency and prefetch_workers must be at least 1")
	}
	if p.ReadRetryAttempts < 1 {
		return fmt.Errorf("read_retry_attempts must be at least 1")
	}
	return nil
}
