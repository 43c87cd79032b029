package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if TORIFUDA_CONFIG is set
//  3. env (prefix TORIFUDA_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("TORIFUDA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, WrapKind("load config file", ErrLoadConfig, err)
		}
	}

	// Environment variables: TORIFUDA_ADDR, TORIFUDA_QUEUE_SIZE, ...
	// Map env keys like TORIFUDA_QUEUE_SIZE -> queue_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("TORIFUDA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "torifuda_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, WrapKind("load env", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, WrapKind("unmarshal config", ErrLoadConfig, err)
	}

	if cfg.Addr == "" {
		return nil, NewKind("addr must not be empty", ErrInvalidConfig)
	}
	if cfg.QueueSize <= 0 {
		return nil, NewKind("queue_size must be positive", ErrInvalidConfig)
	}
	if cfg.WorkerCount <= 0 {
		return nil, NewKind("worker_count must be positive", ErrInvalidConfig)
	}
	if cfg.SessionTTLMinutes <= 0 {
		return nil, NewKind("session_ttl_minutes must be positive", ErrInvalidConfig)
	}
	if cfg.OfficialMinParticipants < 1 {
		return nil, NewKind("official_min_participants must be at least 1", ErrInvalidConfig)
	}
	return &cfg, nil
}
