package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SOULLINK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SOULLINK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "SOULLINK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "dispatch.voice_prob_general", typ: kFloat, env: "SOULLINK_DISPATCH_VOICE_PROB_GENERAL",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.VoiceProbGeneral = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dispatch.VoiceProbGeneral },
	},
	{
		key: "dispatch.image_prob_general", typ: kFloat, env: "SOULLINK_DISPATCH_IMAGE_PROB_GENERAL",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.ImageProbGeneral = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dispatch.ImageProbGeneral },
	},
	{
		key: "dispatch.voice_prob_attachment", typ: kFloat, env: "SOULLINK_DISPATCH_VOICE_PROB_ATTACHMENT",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.VoiceProbAttachment = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dispatch.VoiceProbAttachment },
	},
	{
		key: "dispatch.image_prob_attachment", typ: kFloat, env: "SOULLINK_DISPATCH_IMAGE_PROB_ATTACHMENT",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.ImageProbAttachment = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dispatch.ImageProbAttachment },
	},
	{
		key: "dispatch.fragment_stagger_ms", typ: kInt, env: "SOULLINK_DISPATCH_FRAGMENT_STAGGER_MS",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.FragmentStaggerMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Dispatch.FragmentStaggerMs },
	},
	{
		key: "dispatch.voice_duration_factor", typ: kInt, env: "SOULLINK_DISPATCH_VOICE_DURATION_FACTOR",
		apply:   func(cfg *Config, v any) { cfg.Dispatch.VoiceDurationFactor = v.(int) },
		extract: func(cfg Config) any { return cfg.Dispatch.VoiceDurationFactor },
	},
	{
		key: "autonomy.tick_seconds", typ: kInt, env: "SOULLINK_AUTONOMY_TICK_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Autonomy.TickSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Autonomy.TickSeconds },
	},
	{
		key: "autonomy.post_probability", typ: kFloat, env: "SOULLINK_AUTONOMY_POST_PROBABILITY",
		apply:   func(cfg *Config, v any) { cfg.Autonomy.PostProbability = v.(float64) },
		extract: func(cfg Config) any { return cfg.Autonomy.PostProbability },
	},
	{
		key: "autonomy.comment_probability", typ: kFloat, env: "SOULLINK_AUTONOMY_COMMENT_PROBABILITY",
		apply:   func(cfg *Config, v any) { cfg.Autonomy.CommentProbability = v.(float64) },
		extract: func(cfg Config) any { return cfg.Autonomy.CommentProbability },
	},
	{
		key: "autonomy.transfer_accept_prob", typ: kFloat, env: "SOULLINK_AUTONOMY_TRANSFER_ACCEPT_PROB",
		apply:   func(cfg *Config, v any) { cfg.Autonomy.TransferAcceptProb = v.(float64) },
		extract: func(cfg Config) any { return cfg.Autonomy.TransferAcceptProb },
	},
	{
		key: "autonomy.transfer_delay_ms", typ: kInt, env: "SOULLINK_AUTONOMY_TRANSFER_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Autonomy.TransferDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Autonomy.TransferDelayMs },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		switch s.typ {
		case kString:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		case kFloat:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid float value for %s: %w", key, err)
			}
			return b.SetFloat(key, f)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
