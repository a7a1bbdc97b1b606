package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yok-tottii/micloop/internal/audio"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("Expected default config to be created")
	}

	if config.Audio.Backend != "portaudio" {
		t.Errorf("Expected Backend 'portaudio', got '%s'", config.Audio.Backend)
	}

	if config.Audio.DeviceID != -1 {
		t.Errorf("Expected DeviceID -1, got %d", config.Audio.DeviceID)
	}

	if config.Audio.DevicePath != "/dev/dsp" {
		t.Errorf("Expected DevicePath '/dev/dsp', got '%s'", config.Audio.DevicePath)
	}

	if config.Audio.Latency != "high" {
		t.Errorf("Expected Latency 'high', got '%s'", config.Audio.Latency)
	}

	if config.Engine.GrowIncrement != 300000 {
		t.Errorf("Expected GrowIncrement 300000, got %d", config.Engine.GrowIncrement)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected LogLevel 'info', got '%s'", config.LogLevel)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.json")

	config := DefaultConfig()
	config.Audio.Backend = "oss"
	config.Audio.Format = "s16le"
	config.LogLevel = "debug"

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Audio.Backend != "oss" {
		t.Errorf("Expected Backend 'oss', got '%s'", loaded.Audio.Backend)
	}

	if loaded.Audio.Format != "s16le" {
		t.Errorf("Expected Format 's16le', got '%s'", loaded.Audio.Format)
	}

	if loaded.LogLevel != "debug" {
		t.Errorf("Expected LogLevel 'debug', got '%s'", loaded.LogLevel)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}

	if config.Audio.SampleRate != 8000 {
		t.Errorf("Expected default SampleRate 8000, got %d", config.Audio.SampleRate)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte(`{"audio": {"sample_rate": 44100}}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Audio.SampleRate != 44100 {
		t.Errorf("Expected SampleRate 44100, got %d", config.Audio.SampleRate)
	}

	if config.Audio.Format != "u8" || config.Engine.GrowIncrement != 300000 {
		t.Errorf("Missing fields should keep defaults, got %+v %+v", config.Audio, config.Engine)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if !strings.HasSuffix(path, filepath.Join("micloop", "config.json")) {
		t.Errorf("Unexpected config path: %s", path)
	}
}

func TestApply(t *testing.T) {
	config := DefaultConfig()

	err := config.Apply(map[string]string{
		"backend":   "oss",
		"dsp":       "/dev/dsp1",
		"device":    "3",
		"rate":      "44100",
		"channels":  "2",
		"format":    "s16le",
		"frames":    "256",
		"latency":   "low",
		"log-level": "warn",
		"log-dir":   "/tmp/logs",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	a := config.AudioConfig()
	if a.Backend != "oss" || a.Path != "/dev/dsp1" || a.DeviceID != 3 || a.SampleRate != 44100 ||
		a.Channels != 2 || a.Format != "s16le" || a.FramesPerBuffer != 256 || a.Latency != audio.LowLatency {
		t.Errorf("Unexpected audio config: %+v", a)
	}

	if config.LogLevel != "warn" || config.LogDir != "/tmp/logs" {
		t.Errorf("Unexpected log settings: %s %s", config.LogLevel, config.LogDir)
	}
}

func TestApply_Invalid(t *testing.T) {
	tests := []map[string]string{
		{"rate": "fast"},
		{"device": "default"},
		{"frames": ""},
		{"channels": "two"},
		{"volume": "11"},
	}

	for _, overrides := range tests {
		if err := DefaultConfig().Apply(overrides); err == nil {
			t.Errorf("Expected error for %v", overrides)
		}
	}
}

func TestEngineConfig(t *testing.T) {
	config := DefaultConfig()
	config.Engine.MaxBufferBytes = 1024

	e, err := config.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if e.GrowIncrement != 300000 || e.MaxBytes != 1024 {
		t.Errorf("Unexpected engine config: %+v", e)
	}
}

func TestEngineConfig_DerivedLimit(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
		format   string
		grow     int
		expected int
	}{
		// 8000 B/s for 8s is 64000 bytes, within the first increment
		{"default stream", 8000, 1, "u8", 300000, 300000},
		// 192000 B/s for 8s is 1536000 bytes
		{"48kHz stereo s16le", 48000, 2, "s16le", 300000, 1800000},
		// an exact multiple still leaves a full increment of headroom
		{"exact multiple", 1000, 1, "u8", 8000, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Audio.SampleRate = tt.rate
			config.Audio.Channels = tt.channels
			config.Audio.Format = tt.format
			config.Engine.GrowIncrement = tt.grow

			e, err := config.EngineConfig()
			if err != nil {
				t.Fatalf("EngineConfig failed: %v", err)
			}
			if e.MaxBytes != tt.expected {
				t.Errorf("Expected max bytes %d, got %d", tt.expected, e.MaxBytes)
			}
			if e.MaxBytes%tt.grow != 0 {
				t.Errorf("Limit %d is not a multiple of the grow increment %d", e.MaxBytes, tt.grow)
			}
		})
	}
}

func TestEngineConfig_InvalidFormat(t *testing.T) {
	config := DefaultConfig()
	config.Audio.Format = "f32"

	if _, err := config.EngineConfig(); err == nil {
		t.Error("Expected error for an unknown sample format")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad backend", func(c *Config) { c.Audio.Backend = "jack" }, true},
		{"bad latency", func(c *Config) { c.Audio.Latency = "medium" }, true},
		{"bad device id", func(c *Config) { c.Audio.DeviceID = -2 }, true},
		{"bad format", func(c *Config) { c.Audio.Format = "f32" }, true},
		{"zero grow increment", func(c *Config) { c.Engine.GrowIncrement = 0 }, true},
		{"negative max buffer", func(c *Config) { c.Engine.MaxBufferBytes = -1 }, true},
		{"derived buffer limit", func(c *Config) { c.Engine.MaxBufferBytes = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"tilde", "~/logs", filepath.Join(homeDir, "logs")},
		{"absolute", "/var/log/micloop", "/var/log/micloop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath failed: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestParseDelay(t *testing.T) {
	tests := []struct {
		arg      string
		expected float64
		wantErr  error
	}{
		{"", 0, nil},
		{"0", 0, nil},
		{"0.5", 0.5, nil},
		{" 2 ", 2, nil},
		{"8", 8, nil},
		{"8.0", 8, nil},
		{"8.000001", 0, ErrDelayTooLarge},
		{"100", 0, ErrDelayTooLarge},
		{"-1", 0, ErrInvalidDelay},
		{"abc", 0, ErrInvalidDelay},
		{"NaN", 0, ErrInvalidDelay},
		{"Inf", 0, ErrInvalidDelay},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			delay, err := ParseDelay(tt.arg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDelay failed: %v", err)
			}
			if delay != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, delay)
			}
		})
	}
}
