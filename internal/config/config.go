// Package config loads village configuration from YAML files, .env files
// and VILLAGE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/village-mind/internal/cognition"
	"github.com/talgya/village-mind/internal/world"
)

// Config contains every village setting.
type Config struct {
	Seed int64 `yaml:"seed"`

	// TickRate is the number of logical ticks per simulated second.
	TickRate int `yaml:"tick_rate"`

	// WorldSize bounds every position.
	WorldSize world.Bounds `yaml:"world_size"`

	// MaxEntities caps everything the town tracks; MaxNPCs caps villagers.
	MaxEntities int `yaml:"max_entities"`
	MaxNPCs     int `yaml:"max_npcs"`

	// MemoryDecayRate is the default memory decay coefficient per
	// simulated second. It is converted to a per-tick rate internally.
	MemoryDecayRate float64 `yaml:"memory_decay_rate"`

	// InteractionRadius is both the perception and the interaction distance.
	InteractionRadius float64 `yaml:"interaction_radius"`

	// AwarenessThreshold is the suspicion score needed to advance a level.
	AwarenessThreshold float64 `yaml:"awareness_threshold"`

	Cognition   CognitionConfig   `yaml:"cognition"`
	Memory      MemoryConfig      `yaml:"memory"`
	Awareness   AwarenessConfig   `yaml:"awareness"`
	Social      SocialConfig      `yaml:"social"`
	Dialogue    DialogueConfig    `yaml:"dialogue"`
	Persistence PersistenceConfig `yaml:"persistence"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CognitionConfig tunes decision making.
type CognitionConfig struct {
	ThinkEvery          uint64            `yaml:"think_every"` // Decide runs every N ticks
	MinViability        float64           `yaml:"min_viability"`
	Weights             cognition.Weights `yaml:"weights"`
	InteractionCooldown uint64            `yaml:"interaction_cooldown"` // Ticks
	RevealCooldown      uint64            `yaml:"reveal_cooldown"`      // Ticks
	WanderRadius        float64           `yaml:"wander_radius"`
	MoveSpeed           float64           `yaml:"move_speed"` // Units per tick
	NeedDecay           float64           `yaml:"need_decay"` // Per tick
	MoodDecay           float64           `yaml:"mood_decay"` // Per tick
}

// MemoryConfig tunes the memory store.
type MemoryConfig struct {
	ShortTermCapacity int     `yaml:"short_term_capacity"`
	LongTermCapacity  int     `yaml:"long_term_capacity"`
	PromoteAfter      int     `yaml:"promote_after"`
	SalienceThreshold float64 `yaml:"salience_threshold"`
	LongTermFactor    float64 `yaml:"long_term_decay_factor"`
	PruneFloor        float64 `yaml:"prune_floor"`
	SightingCooldown  uint64  `yaml:"sighting_cooldown"`
}

// AwarenessConfig tunes the awareness state machine and its evidence.
type AwarenessConfig struct {
	SuspectingSensitivity float64 `yaml:"suspecting_sensitivity"`
	SuspectTimeout        uint64  `yaml:"suspect_timeout"` // Ticks
	RevealStrength        float64 `yaml:"reveal_strength"`
	WitnessStrength       float64 `yaml:"witness_strength"`
	MetaDialogueStrength  float64 `yaml:"meta_dialogue_strength"`
	RumourStrength        float64 `yaml:"rumour_strength"`
	GlitchStrength        float64 `yaml:"glitch_strength"`
	GlitchThreshold       float64 `yaml:"glitch_threshold"` // 1 disables glitches
	GlitchCooldown        uint64  `yaml:"glitch_cooldown"`  // Ticks between glitches one villager notices
}

// SocialConfig tunes relationship drift.
type SocialConfig struct {
	StaleAfter uint64  `yaml:"stale_after"` // Ticks
	DecayRate  float64 `yaml:"decay_rate"`  // Per tick, once stale
}

// DialogueConfig selects and tunes the dialogue provider.
type DialogueConfig struct {
	// Provider is "template" (local, deterministic) or "anthropic".
	Provider     string        `yaml:"provider"`
	APIKey       string        `yaml:"api_key,omitempty"`
	Model        string        `yaml:"model,omitempty"`
	LatencyTicks uint64        `yaml:"latency_ticks"`
	Timeout      time.Duration `yaml:"timeout"`
	Workers      int           `yaml:"workers"`
	RateLimit    int           `yaml:"rate_limit"` // Calls per minute
}

// String implements fmt.Stringer without leaking the API key.
func (c DialogueConfig) String() string {
	key := ""
	if c.APIKey != "" {
		key = "(set)"
	}
	return fmt.Sprintf("DialogueConfig{Provider:%s, APIKey:%s, Model:%s}", c.Provider, key, c.Model)
}

// PersistenceConfig configures the state archive. Empty paths disable it.
type PersistenceConfig struct {
	DBPath       string `yaml:"db_path"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisKey     string `yaml:"redis_key"`
	PersistEvery uint64 `yaml:"persist_every"` // Ticks
}

// APIConfig configures the HTTP surface. An empty Addr disables it.
type APIConfig struct {
	Addr      string  `yaml:"addr"`
	AdminKey  string  `yaml:"admin_key,omitempty"`
	RateLimit float64 `yaml:"rate_limit"` // Requests per second per client
	Burst     int     `yaml:"burst"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a Config with the standard village settings.
func Default() *Config {
	return &Config{
		Seed:               42,
		TickRate:           60,
		WorldSize:          world.Bounds{Width: 1000, Height: 1000},
		MaxEntities:        1000,
		MaxNPCs:            100,
		MemoryDecayRate:    0.1,
		InteractionRadius:  50,
		AwarenessThreshold: 0.8,
		Cognition: CognitionConfig{
			ThinkEvery:   6,
			MinViability: 0.25,
			Weights: cognition.Weights{
				Trait:  0.45,
				Memory: 0.2,
				Social: 0.15,
				Need:   0.35,
				Mood:   0.15,
			},
			InteractionCooldown: 120,
			RevealCooldown:      600,
			WanderRadius:        120,
			MoveSpeed:           1.5,
			NeedDecay:           0.0002,
			MoodDecay:           0.001,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: 20,
			LongTermCapacity:  64,
			PromoteAfter:      3,
			SalienceThreshold: 0.8,
			LongTermFactor:    0.1,
			PruneFloor:        0.05,
			SightingCooldown:  300,
		},
		Awareness: AwarenessConfig{
			SuspectingSensitivity: 1.5,
			SuspectTimeout:        1800,
			RevealStrength:        0.6,
			WitnessStrength:       0.2,
			MetaDialogueStrength:  0.15,
			RumourStrength:        0.05,
			GlitchStrength:        0.1,
			GlitchThreshold:       0.92,
			GlitchCooldown:        1200,
		},
		Social: SocialConfig{
			StaleAfter: 6000,
			DecayRate:  0.0001,
		},
		Dialogue: DialogueConfig{
			Provider:     "template",
			LatencyTicks: 1,
			Timeout:      10 * time.Second,
			Workers:      4,
			RateLimit:    20,
		},
		Persistence: PersistenceConfig{
			RedisKey:     "village:state",
			PersistEvery: 600,
		},
		API: APIConfig{
			RateLimit: 10,
			Burst:     20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the .env file named by VILLAGE_ENV (or .env), then the YAML
// file at path if it is not empty, then applies VILLAGE_* overrides.
// The result is not validated.
func Load(path string) (*Config, error) {
	envFile := os.Getenv("VILLAGE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	// Missing .env files are fine.
	_ = godotenv.Load(envFile)

	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Dialogue.APIKey = expandEnvVars(cfg.Dialogue.APIKey)
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// TickInterval returns the wall-clock duration of one tick.
func (c *Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}

// MemoryDecayPerTick converts MemoryDecayRate to a per-tick coefficient.
func (c *Config) MemoryDecayPerTick() float64 {
	if c.TickRate <= 0 {
		return 0
	}
	return c.MemoryDecayRate / float64(c.TickRate)
}

// SlogLevel maps Logging.Level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VILLAGE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("VILLAGE_TICK_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickRate = n
		}
	}
	if v := os.Getenv("VILLAGE_MAX_NPCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxNPCs = n
		}
	}
	if v := os.Getenv("VILLAGE_MAX_ENTITIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxEntities = n
		}
	}
	if v := os.Getenv("VILLAGE_MEMORY_DECAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MemoryDecayRate = f
		}
	}
	if v := os.Getenv("VILLAGE_INTERACTION_RADIUS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.InteractionRadius = f
		}
	}
	if v := os.Getenv("VILLAGE_AWARENESS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AwarenessThreshold = f
		}
	}
	if v := os.Getenv("VILLAGE_DIALOGUE_PROVIDER"); v != "" {
		cfg.Dialogue.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Dialogue.Provider == "anthropic" {
		cfg.Dialogue.APIKey = v
	}
	if v := os.Getenv("VILLAGE_DB_PATH"); v != "" {
		cfg.Persistence.DBPath = v
	}
	if v := os.Getenv("VILLAGE_REDIS_ADDR"); v != "" {
		cfg.Persistence.RedisAddr = v
	}
	if v := os.Getenv("VILLAGE_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("VILLAGE_ADMIN_KEY"); v != "" {
		cfg.API.AdminKey = v
	}
	if v := os.Getenv("VILLAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
