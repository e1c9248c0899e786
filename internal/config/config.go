package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

type SynthConfig struct {
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	MinUnitLength int    `yaml:"min_unit_length"`
	PollTimeoutMS int    `yaml:"poll_timeout_ms"`
}

type PlaybackConfig struct {
	Enabled     bool `yaml:"enabled"`
	QueueSize   int  `yaml:"queue_size"`
	IdleCloseMS int  `yaml:"idle_close_ms"`
}

type ModelsConfig struct {
	MaxCached int `yaml:"max_cached"`
}

type UserDataConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Audio       AudioConfig     `yaml:"audio"`
	Synth       SynthConfig     `yaml:"synth"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Models      ModelsConfig    `yaml:"models"`
	UserData    UserDataConfig  `yaml:"user_data"`
}

func Default() Config {
	return Config{
		RuntimeName: "kanade-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			SampleRate: 32000,
			Channels:   1,
		},
		Synth: SynthConfig{
			Mode:          "mock",
			MinUnitLength: 5,
			PollTimeoutMS: 1000,
		},
		Playback: PlaybackConfig{
			Enabled:     true,
			QueueSize:   64,
			IdleCloseMS: 1000,
		},
		Models: ModelsConfig{
			MaxCached: 3,
		},
		UserData: UserDataConfig{
			Path: "./data/kanade-userdata.db",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "KANADE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "KANADE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "KANADE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "KANADE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "KANADE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "KANADE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "KANADE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "KANADE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "KANADE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "KANADE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "KANADE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "KANADE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "KANADE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "KANADE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "KANADE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "KANADE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "KANADE_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Audio.SampleRate, "KANADE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "KANADE_AUDIO_CHANNELS")
	overrideString(&cfg.Synth.Mode, "KANADE_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "KANADE_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.MinUnitLength, "KANADE_SYNTH_MIN_UNIT_LENGTH")
	overrideInt(&cfg.Synth.PollTimeoutMS, "KANADE_SYNTH_POLL_TIMEOUT_MS")
	overrideBool(&cfg.Playback.Enabled, "KANADE_PLAYBACK_ENABLED")
	overrideInt(&cfg.Playback.QueueSize, "KANADE_PLAYBACK_QUEUE_SIZE")
	overrideInt(&cfg.Playback.IdleCloseMS, "KANADE_PLAYBACK_IDLE_CLOSE_MS")
	overrideInt(&cfg.Models.MaxCached, "KANADE_MODELS_MAX_CACHED")
	overrideString(&cfg.UserData.Path, "KANADE_USER_DATA_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.MinUnitLength < 0 {
		return errors.New("synth.min_unit_length must be >= 0")
	}
	if cfg.Synth.PollTimeoutMS <= 0 {
		return errors.New("synth.poll_timeout_ms must be positive")
	}
	if cfg.Playback.Enabled {
		if cfg.Playback.QueueSize <= 0 {
			return errors.New("playback.queue_size must be positive")
		}
		if cfg.Playback.IdleCloseMS <= 0 {
			return errors.New("playback.idle_close_ms must be positive")
		}
	}
	if cfg.Models.MaxCached <= 0 {
		return errors.New("models.max_cached must be >= 1")
	}
	if cfg.UserData.Path == "" {
		return errors.New("user_data.path must not be empty")
	}
	return nil
}
