package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Dispatch DispatchConfig
	Autonomy AutonomyConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// DispatchConfig holds the reply-dispatcher tunables: the weighted
// message-kind tables for general and attachment-triggered replies,
// and the stagger between fragments of one reply.
type DispatchConfig struct {
	VoiceProbGeneral    float64
	ImageProbGeneral    float64
	VoiceProbAttachment float64
	ImageProbAttachment float64
	FragmentStaggerMs   int
	VoiceDurationFactor int
}

// AutonomyConfig holds the background-activity tunables.
type AutonomyConfig struct {
	TickSeconds        int
	PostProbability    float64
	CommentProbability float64
	TransferAcceptProb float64
	TransferDelayMs    int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Dispatch: DispatchConfig{
			VoiceProbGeneral:    0.20,
			ImageProbGeneral:    0.15,
			VoiceProbAttachment: 0.30,
			ImageProbAttachment: 0.20,
			FragmentStaggerMs:   800,
			VoiceDurationFactor: 3,
		},
		Autonomy: AutonomyConfig{
			TickSeconds:        60,
			PostProbability:    0.35,
			CommentProbability: 0.40,
			TransferAcceptProb: 0.75,
			TransferDelayMs:    2000,
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/soullink/config.json, then applies SOULLINK_*
// environment variable overrides. Connection profiles (backend URL,
// API key, model) are entities managed at runtime, not config keys.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "soullink-data"
		}
	}
	return filepath.Join(dir, "soullink")
}
