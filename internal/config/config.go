package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yok-tottii/micloop/internal/audio"
	"github.com/yok-tottii/micloop/internal/echo"
)

// MaxDelay is the largest accepted delay in seconds.
// It bounds the memory held by the delay buffer.
const MaxDelay = 8.0

var (
	// ErrInvalidDelay is returned for delays that are not a non-negative number
	ErrInvalidDelay = errors.New("invalid delay")
	// ErrDelayTooLarge is returned for delays above MaxDelay
	ErrDelayTooLarge = errors.New("the delay is too big - mind your memory")
)

// Config holds application configuration
type Config struct {
	Audio    AudioConfig  `json:"audio"`
	Engine   EngineConfig `json:"engine"`
	LogLevel string       `json:"log_level"` // "debug", "info", "warn" or "error"
	LogDir   string       `json:"log_dir"`   // empty disables the log file
}

// AudioConfig holds device configuration
type AudioConfig struct {
	Backend         string `json:"backend"` // "portaudio" or "oss"
	DeviceID        int    `json:"device_id"`
	DevicePath      string `json:"device_path"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	Format          string `json:"format"` // "u8" or "s16le"
	FramesPerBuffer int    `json:"frames_per_buffer"`
	Latency         string `json:"latency"` // "low" or "high"
}

// EngineConfig holds delay buffer configuration
type EngineConfig struct {
	GrowIncrement  int `json:"grow_increment"`   // bytes
	MaxBufferBytes int `json:"max_buffer_bytes"` // 0 sizes the buffer for MaxDelay at the stream rate
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	a := audio.DefaultConfig()
	return &Config{
		Audio: AudioConfig{
			Backend:         a.Backend,
			DeviceID:        a.DeviceID, // -1 means use system default device
			DevicePath:      a.Path,
			SampleRate:      a.SampleRate,
			Channels:        a.Channels,
			Format:          a.Format,
			FramesPerBuffer: a.FramesPerBuffer,
			Latency:         a.Latency.String(),
		},
		Engine: EngineConfig{
			GrowIncrement:  echo.DefaultGrowIncrement,
			MaxBufferBytes: 0,
		},
		LogLevel: "info",
		LogDir:   "",
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their defaults
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "micloop", "config.json")
}

// Apply applies command line overrides keyed by flag name
func (c *Config) Apply(overrides map[string]string) error {
	for key, value := range overrides {
		switch key {
		case "backend":
			c.Audio.Backend = value
		case "device":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid device: %s", value)
			}
			c.Audio.DeviceID = v
		case "dsp":
			c.Audio.DevicePath = value
		case "rate":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid rate: %s", value)
			}
			c.Audio.SampleRate = v
		case "channels":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid channels: %s", value)
			}
			c.Audio.Channels = v
		case "format":
			c.Audio.Format = value
		case "frames":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid frames: %s", value)
			}
			c.Audio.FramesPerBuffer = v
		case "latency":
			c.Audio.Latency = value
		case "log-level":
			c.LogLevel = value
		case "log-dir":
			c.LogDir = value
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}

	return nil
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	// Return absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetLogDir returns the expanded log directory
func (c *Config) GetLogDir() (string, error) {
	return ExpandPath(c.LogDir)
}

// AudioConfig converts the device settings for the audio package
func (c *Config) AudioConfig() audio.Config {
	latency := audio.HighStability
	if c.Audio.Latency == audio.LowLatency.String() {
		latency = audio.LowLatency
	}

	return audio.Config{
		Backend:         c.Audio.Backend,
		DeviceID:        c.Audio.DeviceID,
		Path:            c.Audio.DevicePath,
		SampleRate:      c.Audio.SampleRate,
		Channels:        c.Audio.Channels,
		Format:          c.Audio.Format,
		FramesPerBuffer: c.Audio.FramesPerBuffer,
		Latency:         latency,
	}
}

// EngineConfig converts the buffer settings for the echo package.
// Without an explicit max_buffer_bytes the cap is MaxDelay seconds of the
// configured stream, rounded up to the next grow increment.
func (c *Config) EngineConfig() (echo.EngineConfig, error) {
	engine := echo.EngineConfig{
		GrowIncrement: c.Engine.GrowIncrement,
		MaxBytes:      c.Engine.MaxBufferBytes,
	}
	if engine.MaxBytes > 0 {
		return engine, nil
	}

	rate, err := c.AudioConfig().ByteRate()
	if err != nil {
		return engine, err
	}
	if engine.GrowIncrement <= 0 {
		return engine, fmt.Errorf("invalid grow_increment: %d", engine.GrowIncrement)
	}

	limit := int(math.Ceil(float64(rate) * MaxDelay))
	engine.MaxBytes = (limit/engine.GrowIncrement + 1) * engine.GrowIncrement
	return engine, nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	if err := c.AudioConfig().Validate(); err != nil {
		return err
	}

	// Validate latency
	if c.Audio.Latency != "low" && c.Audio.Latency != "high" {
		return fmt.Errorf("invalid latency: %s (must be 'low' or 'high')", c.Audio.Latency)
	}

	// Validate device ID
	if c.Audio.DeviceID < -1 {
		return fmt.Errorf("invalid device_id: %d (must be -1 or a device index)", c.Audio.DeviceID)
	}

	// Validate buffer sizing
	if c.Engine.GrowIncrement <= 0 {
		return fmt.Errorf("invalid grow_increment: %d (must be positive)", c.Engine.GrowIncrement)
	}
	if c.Engine.MaxBufferBytes < 0 {
		return fmt.Errorf("invalid max_buffer_bytes: %d (must be 0 or positive)", c.Engine.MaxBufferBytes)
	}

	// Validate log level
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be 'debug', 'info', 'warn' or 'error')", c.LogLevel)
	}

	return nil
}

// ParseDelay parses the delay argument in seconds.
// An empty argument means no delay.
func ParseDelay(arg string) (float64, error) {
	if arg == "" {
		return 0, nil
	}

	delay, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidDelay, arg)
	}

	if err := ValidateDelay(delay); err != nil {
		return 0, err
	}

	return delay, nil
}

// ValidateDelay checks that delay is within [0, MaxDelay]
func ValidateDelay(delay float64) error {
	if math.IsNaN(delay) || math.IsInf(delay, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDelay, delay)
	}
	if delay < 0 {
		return fmt.Errorf("%w: %v is negative", ErrInvalidDelay, delay)
	}
	if delay > MaxDelay {
		return fmt.Errorf("%w: %v exceeds %v seconds", ErrDelayTooLarge, delay, MaxDelay)
	}
	return nil
}
