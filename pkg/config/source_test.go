package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSource_Load(t *testing.T) {
	k := koanf.New(".")
	src := &DefaultSource{}
	assert.Equal(t, 10, src.Priority())
	assert.Equal(t, "defaults", src.Name())

	require.NoError(t, src.Load(k))
	assert.Equal(t, "info", k.String("log.level"))
	assert.Equal(t, 1, k.Int("scheduler.concurrency"))
}

func TestFileSource_Load(t *testing.T) {
	t.Run("empty path skipped", func(t *testing.T) {
		require.NoError(t, (&FileSource{}).Load(koanf.New(".")))
	})

	t.Run("missing file skipped", func(t *testing.T) {
		require.NoError(t, (&FileSource{Path: "/nonexistent/bytehunter.yaml"}).Load(koanf.New(".")))
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\nexecutor:\n  burst: 4\n"), 0o644))

		k := koanf.New(".")
		src := &FileSource{Path: path}
		assert.Equal(t, 20, src.Priority())
		assert.Equal(t, "file:"+path, src.Name())
		require.NoError(t, src.Load(k))
		assert.Equal(t, "json", k.String("log.format"))
		assert.Equal(t, 4, k.Int("executor.burst"))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o644))
		require.Error(t, (&FileSource{Path: path}).Load(koanf.New(".")))
	})
}

func TestEnvSource_Load(t *testing.T) {
	t.Setenv("BYTEHUNTER_LOG_LEVEL", "error")
	t.Setenv("BYTEHUNTER_SCHEDULER_PER_CATEGORY_LIMIT", "2")

	k := koanf.New(".")
	src := &EnvSource{}
	assert.Equal(t, 30, src.Priority())
	require.NoError(t, src.Load(k))

	assert.Equal(t, "error", k.String("log.level"))
	assert.Equal(t, 2, k.Int("scheduler.per_category_limit"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "executor.rate_limit", envKey(EnvPrefix, "BYTEHUNTER_EXECUTOR_RATE_LIMIT"))
	assert.Equal(t, "workspace.dir", envKey(EnvPrefix, "BYTEHUNTER_WORKSPACE_DIR"))
	assert.Empty(t, envKey(EnvPrefix, "BYTEHUNTER_WORKSPACE"))
}

func TestFlagSource_Load(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.level", "info", "")
	flags.Int("concurrency", 1, "")
	flags.Int("burst", 1, "")
	require.NoError(t, flags.Parse([]string{"--log.level=debug", "--concurrency=8"}))

	src := &FlagSource{Flags: flags}
	assert.Equal(t, 40, src.Priority())
	require.NoError(t, src.Load(k))

	assert.Equal(t, "debug", k.String("log.level"))
	assert.Equal(t, 8, k.Int("scheduler.concurrency"))
	assert.Equal(t, 1, k.Int("executor.burst"))
}

func TestFlagSource_Load_NilFlagsWithDebug(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&FlagSource{Debug: true}).Load(k))
	assert.Equal(t, "debug", k.String("log.level"))
}

func TestDefaultSources_Order(t *testing.T) {
	sources := DefaultSources("/tmp/config.yaml", nil, false)
	require.Len(t, sources, 4)
	assert.Equal(t, "defaults", sources[0].Name())
	assert.Equal(t, "file:/tmp/config.yaml", sources[1].Name())
	assert.Equal(t, "env", sources[2].Name())
	assert.Equal(t, "flags", sources[3].Name())
	for i := 1; i < len(sources); i++ {
		assert.Greater(t, sources[i].Priority(), sources[i-1].Priority())
	}
}

func TestLoad_SortsByPriority(t *testing.T) {
	t.Setenv("BYTEHUNTER_LOG_LEVEL", "warn")

	m := NewManager()
	require.NoError(t, m.Load(
		&EnvSource{},
		&mockConfigSource{name: "custom", priority: 25, loadFunc: setKey("log.level", "error")},
		&DefaultSource{},
	))
	assert.Equal(t, "warn", m.Get().Log.Level, "env (30) applies after custom (25)")
}

type mockConfigSource struct {
	name     string
	priority int
	loadFunc func(k *koanf.Koanf) error
}

func (m *mockConfigSource) Name() string  { return m.name }
func (m *mockConfigSource) Priority() int { return m.priority }
func (m *mockConfigSource) Load(k *koanf.Koanf) error {
	if m.loadFunc != nil {
		return m.loadFunc(k)
	}
	return nil
}

func setKey(key string, value any) func(*koanf.Koanf) error {
	return func(k *koanf.Koanf) error { return k.Set(key, value) }
}
