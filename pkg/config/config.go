// pkg/config/config.go
package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager returns a manager holding the default configuration until Load
// is called.
func NewManager() *Manager {
	return &Manager{
		koanfInstance: koanf.New("."),
		currentConfig: DefaultConfig(),
	}
}

// DefaultConfig returns the baseline configuration used when no other source
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			Concurrency:      1,
			PerCategoryLimit: 0,
		},
		Executor: ExecutorConfig{
			Timeout:   10 * time.Minute,
			RateLimit: 0,
			Burst:     1,
		},
		Report: ReportConfig{Enabled: true},
	}
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"scheduler.concurrency":        def.Scheduler.Concurrency,
		"scheduler.per_category_limit": def.Scheduler.PerCategoryLimit,

		"executor.timeout":    def.Executor.Timeout,
		"executor.rate_limit": def.Executor.RateLimit,
		"executor.burst":      def.Executor.Burst,

		"workspace.dir": def.Workspace.Dir,

		"report.enabled": def.Report.Enabled,
	}
}

var validate = validator.New()

// Load merges sources in priority order, unmarshals and validates the result.
// A failed load leaves the previous configuration in place.
func (m *Manager) Load(sources ...ConfigSource) error {
	k := koanf.New(".")
	for _, src := range sortSources(sources) {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.koanfInstance = k
	m.currentConfig = cfg
	return nil
}

// LoadDefaults is Load with DefaultSources.
func (m *Manager) LoadDefaults(configPath string, flags *pflag.FlagSet, debug bool) error {
	return m.Load(DefaultSources(configPath, flags, debug)...)
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Keys returns the merged key/value view, mostly for debugging.
func (m *Manager) Keys() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.All()
}

type ctxKey struct{}

// WithManager stores the config manager on ctx.
func WithManager(ctx context.Context, m *Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the manager stored by WithManager.
func FromContext(ctx context.Context) (*Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(ctxKey{}).(*Manager)
	return m, ok && m != nil
}
