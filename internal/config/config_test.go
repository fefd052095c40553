package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 1000.0, cfg.WorldSize.Width)
	assert.Equal(t, 100, cfg.MaxNPCs)
	assert.Equal(t, "template", cfg.Dialogue.Provider)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "village.yaml")
	content := `
seed: 7
tick_rate: 30
world_size:
  width: 400
  height: 300
max_npcs: 12
interaction_radius: 25
cognition:
  think_every: 3
  weights:
    trait: 0.5
dialogue:
  provider: anthropic
  api_key: ${TEST_VILLAGE_KEY}
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEST_VILLAGE_KEY", "sk-test")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, 400.0, cfg.WorldSize.Width)
	assert.Equal(t, 300.0, cfg.WorldSize.Height)
	assert.Equal(t, 12, cfg.MaxNPCs)
	assert.Equal(t, 25.0, cfg.InteractionRadius)
	assert.Equal(t, uint64(3), cfg.Cognition.ThinkEvery)
	assert.Equal(t, 0.5, cfg.Cognition.Weights.Trait)
	assert.Equal(t, "sk-test", cfg.Dialogue.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Dialogue.Timeout)

	// Unset fields keep their defaults.
	assert.Equal(t, 1000, cfg.MaxEntities)
	assert.Equal(t, 20, cfg.Memory.ShortTermCapacity)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_rate: [unclosed"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("VILLAGE_ENV", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("VILLAGE_SEED", "99")
	t.Setenv("VILLAGE_MAX_NPCS", "5")
	t.Setenv("VILLAGE_AWARENESS_THRESHOLD", "0.5")
	t.Setenv("VILLAGE_LOG_LEVEL", "debug")
	t.Setenv("VILLAGE_TICK_RATE", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, 5, cfg.MaxNPCs)
	assert.Equal(t, 0.5, cfg.AwarenessThreshold)
	assert.Equal(t, 60, cfg.TickRate, "unparseable overrides are ignored")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadReadsDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VILLAGE_DB_PATH=/tmp/village.db\n"), 0o600))
	t.Setenv("VILLAGE_ENV", envFile)
	t.Setenv("VILLAGE_DB_PATH", "")
	os.Unsetenv("VILLAGE_DB_PATH")
	t.Cleanup(func() { os.Unsetenv("VILLAGE_DB_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/village.db", cfg.Persistence.DBPath)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }, "tick_rate"},
		{"empty world", func(c *Config) { c.WorldSize.Width = 0 }, "world_size"},
		{"no npcs", func(c *Config) { c.MaxNPCs = 0 }, "max_npcs"},
		{"entities below npcs", func(c *Config) { c.MaxEntities = 10 }, "max_entities"},
		{"negative decay", func(c *Config) { c.MemoryDecayRate = -1 }, "memory_decay_rate"},
		{"zero radius", func(c *Config) { c.InteractionRadius = 0 }, "interaction_radius"},
		{"zero threshold", func(c *Config) { c.AwarenessThreshold = 0 }, "awareness_threshold"},
		{"think every zero", func(c *Config) { c.Cognition.ThinkEvery = 0 }, "cognition.think_every"},
		{"mood never settles", func(c *Config) { c.Cognition.MoodDecay = 0 }, "cognition.mood_decay"},
		{"zero capacity", func(c *Config) { c.Memory.ShortTermCapacity = 0 }, "memory.short_term_capacity"},
		{"long-term memory never decays", func(c *Config) { c.Memory.LongTermFactor = 0 }, "memory.long_term_decay_factor"},
		{"glitch every tick", func(c *Config) { c.Awareness.GlitchCooldown = 0 }, "awareness.glitch_cooldown"},
		{"unknown provider", func(c *Config) { c.Dialogue.Provider = "oracle" }, "dialogue.provider"},
		{"anthropic without key", func(c *Config) { c.Dialogue.Provider = "anthropic" }, "dialogue.api_key"},
		{"archive without interval", func(c *Config) {
			c.Persistence.DBPath = "x.db"
			c.Persistence.PersistEvery = 0
		}, "persistence.persist_every"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestDerivedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second/60, cfg.TickInterval())
	assert.InDelta(t, 0.1/60, cfg.MemoryDecayPerTick(), 1e-15)

	cfg.Logging.Level = "warn"
	assert.Equal(t, "WARN", cfg.SlogLevel().String())
}

func TestDialogueStringHidesKey(t *testing.T) {
	cfg := Default()
	cfg.Dialogue.APIKey = "sk-secret"
	assert.NotContains(t, cfg.Dialogue.String(), "sk-secret")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Seed = 11
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
