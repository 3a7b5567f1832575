package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the full service configuration. Values come from defaults,
// then the YAML file, then environment variables.
type Settings struct {
	Server    ServerSettings    `yaml:"server"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	OBS       OBSSettings       `yaml:"obs"`
	Replay    ReplaySettings    `yaml:"replay"`
	Store     StoreSettings     `yaml:"store"`
	Log       LogSettings       `yaml:"log"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
}

type TelemetrySettings struct {
	Addr   string `yaml:"addr"`
	Buffer int    `yaml:"buffer"`
}

type OBSSettings struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	InputName string `yaml:"input_name"`
	// AutoStart starts a capture session against Host:Port at boot.
	AutoStart bool `yaml:"auto_start"`
}

type ReplaySettings struct {
	DelaySeconds int `yaml:"delay_seconds"`
	// Window is how many recent clips the playlist exposes.
	Window int `yaml:"window"`
}

type StoreSettings struct {
	// Path of the SQLite clip history. Empty keeps clips in memory.
	Path string `yaml:"path"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Dir receives daily log files. Empty logs to stdout only.
	Dir string `yaml:"dir"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Server:    ServerSettings{Addr: ":8080"},
		Telemetry: TelemetrySettings{Addr: "127.0.0.1:12345", Buffer: 32},
		OBS: OBSSettings{
			Host: "127.0.0.1",
			Port: 4455,
		},
		Replay: ReplaySettings{DelaySeconds: 3, Window: 10},
		Store:  StoreSettings{Path: "rl-replay.db"},
		Log:    LogSettings{Level: "debug", Format: "json", Dir: "logs"},
	}
}

// LoadSettings reads the YAML file at path over Defaults. A missing file is
// not an error. Environment overrides are applied last.
func LoadSettings(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return s, fmt.Errorf("read settings %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse settings %s: %w", path, err)
			}
		}
	}
	s.applyEnv()
	return s, nil
}

func (s *Settings) applyEnv() {
	s.Server.Addr = GetEnv("ADDR", s.Server.Addr)
	s.Telemetry.Addr = GetEnv("TELEMETRY_ADDR", s.Telemetry.Addr)
	s.Telemetry.Buffer = GetEnvInt("TELEMETRY_BUFFER", s.Telemetry.Buffer)
	s.OBS.Host = GetEnv("OBS_HOST", s.OBS.Host)
	s.OBS.Port = GetEnvInt("OBS_PORT", s.OBS.Port)
	s.OBS.Password = GetEnv("OBS_PASSWORD", s.OBS.Password)
	s.OBS.InputName = GetEnv("OBS_INPUT_NAME", s.OBS.InputName)
	s.OBS.AutoStart = GetEnvBool("OBS_AUTO_START", s.OBS.AutoStart)
	s.Replay.DelaySeconds = GetEnvInt("REPLAY_DELAY_SECONDS", s.Replay.DelaySeconds)
	s.Replay.Window = GetEnvInt("CLIP_WINDOW", s.Replay.Window)
	s.Store.Path = GetEnv("STORE_PATH", s.Store.Path)
	s.Log.Level = GetEnv("LOG_LEVEL", s.Log.Level)
	s.Log.Format = GetEnv("LOG_FORMAT", s.Log.Format)
	s.Log.Dir = GetEnv("LOG_DIR", s.Log.Dir)
}
