package config

import "fmt"

// ConfigError describes an invalid setting. It is only ever fatal at
// startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration and returns a *ConfigError for the
// first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return invalid("tick_rate", "must be positive, got %d", c.TickRate)
	case c.WorldSize.Width <= 0 || c.WorldSize.Height <= 0:
		return invalid("world_size", "must be positive, got %vx%v", c.WorldSize.Width, c.WorldSize.Height)
	case c.MaxNPCs <= 0:
		return invalid("max_npcs", "must be positive, got %d", c.MaxNPCs)
	case c.MaxEntities < c.MaxNPCs:
		return invalid("max_entities", "must be at least max_npcs (%d), got %d", c.MaxNPCs, c.MaxEntities)
	case c.MemoryDecayRate < 0:
		return invalid("memory_decay_rate", "must be non-negative, got %v", c.MemoryDecayRate)
	case c.InteractionRadius <= 0:
		return invalid("interaction_radius", "must be positive, got %v", c.InteractionRadius)
	case c.AwarenessThreshold <= 0:
		return invalid("awareness_threshold", "must be positive, got %v", c.AwarenessThreshold)
	}

	cg := c.Cognition
	switch {
	case cg.ThinkEvery == 0:
		return invalid("cognition.think_every", "must be at least 1")
	case cg.MinViability < 0:
		return invalid("cognition.min_viability", "must be non-negative, got %v", cg.MinViability)
	case cg.MoveSpeed <= 0:
		return invalid("cognition.move_speed", "must be positive, got %v", cg.MoveSpeed)
	case cg.NeedDecay < 0 || cg.NeedDecay > 1:
		return invalid("cognition.need_decay", "must be between 0 and 1, got %v", cg.NeedDecay)
	case cg.MoodDecay <= 0 || cg.MoodDecay >= 1:
		return invalid("cognition.mood_decay", "must be in (0, 1), got %v", cg.MoodDecay)
	}

	m := c.Memory
	switch {
	case m.ShortTermCapacity <= 0:
		return invalid("memory.short_term_capacity", "must be positive, got %d", m.ShortTermCapacity)
	case m.LongTermCapacity <= 0:
		return invalid("memory.long_term_capacity", "must be positive, got %d", m.LongTermCapacity)
	case m.PromoteAfter <= 0:
		return invalid("memory.promote_after", "must be positive, got %d", m.PromoteAfter)
	case m.SalienceThreshold <= 0 || m.SalienceThreshold > 1:
		return invalid("memory.salience_threshold", "must be in (0, 1], got %v", m.SalienceThreshold)
	case m.LongTermFactor <= 0 || m.LongTermFactor > 1:
		return invalid("memory.long_term_decay_factor", "must be in (0, 1], got %v", m.LongTermFactor)
	case m.PruneFloor < 0 || m.PruneFloor >= 1:
		return invalid("memory.prune_floor", "must be in [0, 1), got %v", m.PruneFloor)
	}

	a := c.Awareness
	switch {
	case a.SuspectingSensitivity < 1:
		return invalid("awareness.suspecting_sensitivity", "must be at least 1, got %v", a.SuspectingSensitivity)
	case a.GlitchThreshold < 0 || a.GlitchThreshold > 1:
		return invalid("awareness.glitch_threshold", "must be between 0 and 1, got %v", a.GlitchThreshold)
	case a.GlitchCooldown == 0:
		return invalid("awareness.glitch_cooldown", "must be positive")
	case a.RevealStrength < 0 || a.WitnessStrength < 0 || a.MetaDialogueStrength < 0 || a.RumourStrength < 0 || a.GlitchStrength < 0:
		return invalid("awareness", "evidence strengths must be non-negative")
	}

	if c.Social.DecayRate < 0 || c.Social.DecayRate > 1 {
		return invalid("social.decay_rate", "must be between 0 and 1, got %v", c.Social.DecayRate)
	}

	switch c.Dialogue.Provider {
	case "template":
	case "anthropic":
		if c.Dialogue.APIKey == "" {
			return invalid("dialogue.api_key", "required for the anthropic provider")
		}
	default:
		return invalid("dialogue.provider", "unknown provider %q (valid: template, anthropic)", c.Dialogue.Provider)
	}
	if c.Dialogue.Timeout < 0 {
		return invalid("dialogue.timeout", "must be non-negative, got %v", c.Dialogue.Timeout)
	}

	if (c.Persistence.DBPath != "" || c.Persistence.RedisAddr != "") && c.Persistence.PersistEvery == 0 {
		return invalid("persistence.persist_every", "must be at least 1 when an archive is configured")
	}

	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return invalid("api", "rate_limit and burst must be non-negative")
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return invalid("logging.level", "unknown level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}
