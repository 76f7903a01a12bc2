package config

import (
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	data map[string]any
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *mapBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(float64), true, nil
}

func (b *mapBackend) SetString(key, val string) error      { b.data[key] = val; return nil }
func (b *mapBackend) SetInt(key string, val int) error     { b.data[key] = val; return nil }
func (b *mapBackend) SetFloat(key string, v float64) error { b.data[key] = v; return nil }
func (b *mapBackend) Delete(key string) error              { delete(b.data, key); return nil }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("default port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Dispatch.VoiceProbGeneral != 0.20 {
		t.Errorf("default voice prob = %v, want 0.20", cfg.Dispatch.VoiceProbGeneral)
	}
	if cfg.Dispatch.FragmentStaggerMs != 800 {
		t.Errorf("default stagger = %d, want 800", cfg.Dispatch.FragmentStaggerMs)
	}
	if cfg.Autonomy.TransferAcceptProb != 0.75 {
		t.Errorf("default transfer accept prob = %v, want 0.75", cfg.Autonomy.TransferAcceptProb)
	}
}

func TestLoad_BackendOverridesDefaults(t *testing.T) {
	b := &mapBackend{data: map[string]any{
		"server.port":                 9000,
		"log.level":                   "debug",
		"dispatch.voice_prob_general": 0.5,
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Dispatch.VoiceProbGeneral != 0.5 {
		t.Errorf("voice prob = %v, want 0.5", cfg.Dispatch.VoiceProbGeneral)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	t.Setenv("SOULLINK_SERVER_PORT", "7777")
	t.Setenv("SOULLINK_AUTONOMY_POST_PROBABILITY", "0.9")

	b := &mapBackend{data: map[string]any{"server.port": 9000}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want env override 7777", cfg.Server.Port)
	}
	if cfg.Autonomy.PostProbability != 0.9 {
		t.Errorf("post probability = %v, want 0.9", cfg.Autonomy.PostProbability)
	}
}

func TestLoad_MalformedEnvKeepsDefault(t *testing.T) {
	t.Setenv("SOULLINK_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("port = %d, want default 4600 after malformed env", cfg.Server.Port)
	}
}

func TestShowAll_CoversEveryKey(t *testing.T) {
	infos := ShowAll(defaults())
	if len(infos) != len(specs) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(specs))
	}
	seen := map[string]bool{}
	for _, info := range infos {
		if info.EnvVar == "" {
			t.Errorf("key %s has no env var", info.Key)
		}
		seen[info.Key] = true
	}
	for _, k := range ValidKeys() {
		if !seen[k] {
			t.Errorf("valid key %s missing from ShowAll", k)
		}
	}
}
