// Package config loads the assistant's configuration from an optional YAML
// file with environment overrides on top. Configuration problems are fatal at
// startup, before any session or device is opened.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Env variable names. The API key is env-only so it never lands in a config
// file.
const (
	EnvAPIKey          = "GEMINI_API_KEY"
	EnvModel           = "ATEMPO_MODEL"
	EnvAudioBackend    = "ATEMPO_AUDIO_BACKEND"
	EnvTimezone        = "ATEMPO_TIMEZONE"
	EnvCalendarURL     = "ATEMPO_CALENDAR_URL"
	EnvToolTimeoutSecs = "ATEMPO_TOOL_TIMEOUT_SECONDS"
)

// Audio backend names accepted in AudioConfig.Backend.
const (
	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Audio    AudioConfig    `yaml:"audio"`
	Calendar CalendarConfig `yaml:"calendar"`
	Tools    ToolsConfig    `yaml:"tools"`
}

type EngineConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
	Host   string `yaml:"host"`
}

type AudioConfig struct {
	Backend          string `yaml:"backend"`
	FrameSamples     int    `yaml:"frame_samples"`
	CaptureQueueSize int    `yaml:"capture_queue_size"`
}

type CalendarConfig struct {
	Timezone string `yaml:"timezone"`
	// ServiceURL switches from the in-memory store to the remote calendar
	// service when set.
	ServiceURL string `yaml:"service_url"`
}

type ToolsConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Default returns the configuration used when no file and no overrides are
// present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend:          BackendMiniaudio,
			FrameSamples:     1024,
			CaptureQueueSize: 5,
		},
		Calendar: CalendarConfig{
			Timezone: "Asia/Kolkata",
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 10,
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file when
// a path is given, then environment overrides. A named file that cannot be
// read or parsed is an error; an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	overrides, err := fromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := copier.CopyWithOption(&cfg, &overrides, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations that cannot produce a working session.
func (c Config) Validate() error {
	if c.Engine.APIKey == "" {
		return fmt.Errorf("missing engine api key: set %s", EnvAPIKey)
	}
	switch c.Audio.Backend {
	case BackendMiniaudio, BackendPortaudio:
	default:
		return fmt.Errorf("unknown audio backend %q: expected %s or %s", c.Audio.Backend, BackendMiniaudio, BackendPortaudio)
	}
	if c.Audio.FrameSamples <= 0 {
		return fmt.Errorf("audio frame size must be positive, got %d", c.Audio.FrameSamples)
	}
	if c.Audio.CaptureQueueSize <= 0 {
		return fmt.Errorf("capture queue size must be positive, got %d", c.Audio.CaptureQueueSize)
	}
	if c.Tools.TimeoutSeconds <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %d", c.Tools.TimeoutSeconds)
	}
	return nil
}

func fromEnv() (Config, error) {
	var overrides Config
	overrides.Engine.APIKey = os.Getenv(EnvAPIKey)
	overrides.Engine.Model = os.Getenv(EnvModel)
	overrides.Audio.Backend = os.Getenv(EnvAudioBackend)
	overrides.Calendar.Timezone = os.Getenv(EnvTimezone)
	overrides.Calendar.ServiceURL = os.Getenv(EnvCalendarURL)

	if raw := os.Getenv(EnvToolTimeoutSecs); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s=%q: %w", EnvToolTimeoutSecs, raw, err)
		}
		overrides.Tools.TimeoutSeconds = seconds
	}
	return overrides, nil
}
