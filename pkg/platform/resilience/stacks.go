package resilience

import (
	"log/slog"
	"sync"
	"time"

	"timekeep/pkg/platform/circuit"
)

// Dependency names with a configured policy stack.
const (
	DependencyRegistry = "registry"
	DependencyShift    = "shift"
	DependencyCache    = "cache"
	DependencyNotify   = "notify"
	DependencyAudit    = "audit"
	DependencyDevice   = "device"
)

// BreakerConfig mirrors the circuit.Breaker options.
type BreakerConfig struct {
	FailureRatio     float64       `yaml:"failure_ratio"`
	MinThroughput    int           `yaml:"min_throughput"`
	SamplingWindow   time.Duration `yaml:"sampling_window"`
	BreakDuration    time.Duration `yaml:"break_duration"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// StackConfig describes one dependency's timeout, retry and breaker settings.
type StackConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// DefaultStackConfig returns conservative settings shared by every dependency.
func DefaultStackConfig() StackConfig {
	return StackConfig{
		Timeout: 2 * time.Second,
		Retry:   DefaultRetryConfig(),
		Breaker: BreakerConfig{
			FailureRatio:     0.5,
			MinThroughput:    10,
			SamplingWindow:   30 * time.Second,
			BreakDuration:    15 * time.Second,
			SuccessThreshold: 1,
		},
	}
}

// Stacks lazily builds one Pipeline per dependency name. Pipelines are shared
// so every caller of a dependency sees the same breaker.
type Stacks struct {
	mu          sync.Mutex
	configs     map[string]StackConfig
	pipelines   map[string]*Pipeline
	passthrough []error
	logger      *slog.Logger
	metrics     *Metrics
}

// NewStacks builds a registry. Unknown names fall back to DefaultStackConfig.
func NewStacks(configs map[string]StackConfig, logger *slog.Logger, metrics *Metrics, passthrough ...error) *Stacks {
	cp := make(map[string]StackConfig, len(configs))
	for k, v := range configs {
		cp[k] = v
	}
	return &Stacks{
		configs:     cp,
		pipelines:   make(map[string]*Pipeline),
		passthrough: passthrough,
		logger:      logger,
		metrics:     metrics,
	}
}

// Get returns the pipeline for name, building it on first use.
func (s *Stacks) Get(name string) *Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipelines[name]; ok {
		return p
	}
	cfg, ok := s.configs[name]
	if !ok {
		cfg = DefaultStackConfig()
	}
	p := Build(name, cfg,
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithPassthrough(s.passthrough...),
	)
	s.pipelines[name] = p
	return p
}

// Build assembles retry(outer) → breaker → timeout(inner) from cfg.
func Build(name string, cfg StackConfig, opts ...Option) *Pipeline {
	breakerOpts := []circuit.Option{
		circuit.WithFailureRatio(cfg.Breaker.FailureRatio),
		circuit.WithMinThroughput(cfg.Breaker.MinThroughput),
		circuit.WithSamplingWindow(cfg.Breaker.SamplingWindow),
		circuit.WithBreakDuration(cfg.Breaker.BreakDuration),
		circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
	}
	p := New(name, opts...)
	if p.metrics != nil {
		breakerOpts = append(breakerOpts, circuit.WithStateChangeHook(p.metrics.BreakerHook()))
	}
	p.policies = append(p.policies,
		Retry(cfg.Retry),
		Breaker(circuit.New(name, breakerOpts...)),
		Timeout(cfg.Timeout),
	)
	return p
}
