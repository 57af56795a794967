// pkg/config/source.go
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by EnvSource.
const EnvPrefix = "BYTEHUNTER_"

// ConfigSource loads values into koanf. Sources are applied in ascending
// Priority, later ones overriding earlier ones.
//
// Built-in sources and their priorities:
//   - DefaultSource (10): hardcoded defaults
//   - FileSource (20): YAML config file
//   - EnvSource (30): BYTEHUNTER_* environment variables
//   - FlagSource (40): command-line flags
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource provides hardcoded default configuration values.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}
	return nil
}

// FileSource loads configuration from a YAML file. An empty or missing path
// is skipped.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}

	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}

	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource loads configuration from environment variables. The first
// underscore after the prefix separates the section from the key, so
//
//	BYTEHUNTER_LOG_LEVEL                    -> log.level
//	BYTEHUNTER_SCHEDULER_PER_CATEGORY_LIMIT -> scheduler.per_category_limit
type EnvSource struct {
	Prefix string // default: EnvPrefix
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}

	if err := k.Load(env.Provider(prefix, ".", func(key string) string {
		return envKey(prefix, key)
	}), nil); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	return nil
}

// envKey maps a variable name to a config key. Names without a section, such
// as BYTEHUNTER_WORKSPACE, are not config keys and map to "" (ignored).
func envKey(prefix, key string) string {
	name := strings.ToLower(strings.TrimPrefix(key, prefix))
	if !strings.Contains(name, "_") {
		return ""
	}
	return strings.Replace(name, "_", ".", 1)
}

// FlagAliases maps short command-line flag names onto config keys.
var FlagAliases = map[string]string{
	"concurrency":        "scheduler.concurrency",
	"per-category-limit": "scheduler.per_category_limit",
	"timeout":            "executor.timeout",
	"rate-limit":         "executor.rate_limit",
	"burst":              "executor.burst",
	"workspace":          "workspace.dir",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// FlagSource loads changed command-line flags. Flags named after a config key
// (log.level) or listed in FlagAliases override it; other flags are ignored.
type FlagSource struct {
	Flags *pflag.FlagSet
	Debug bool // sets log.level to debug
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		provider := posflag.ProviderWithFlag(s.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := f.Name
			if alias, ok := FlagAliases[key]; ok {
				key = alias
			}
			if !k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(s.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return fmt.Errorf("error loading command-line flags: %w", err)
		}
	}

	if s.Debug {
		_ = k.Set("log.level", "debug")
	}
	return nil
}

// DefaultSources returns defaults, file, env and flags in that order.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags, Debug: debug},
	}
}

func sortSources(sources []ConfigSource) []ConfigSource {
	sorted := slices.Clone(sources)
	slices.SortStableFunc(sorted, func(a, b ConfigSource) int {
		return a.Priority() - b.Priority()
	})
	return sorted
}
