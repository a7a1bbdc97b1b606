package audio

import (
	"fmt"
	"io"
)

// DeviceInfo describes a duplex-capable audio device
type DeviceInfo struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// String returns the string representation of the latency mode
func (m LatencyMode) String() string {
	switch m {
	case LowLatency:
		return "low"
	case HighStability:
		return "high"
	default:
		return "unknown"
	}
}

// Backend names
const (
	BackendPortAudio = "portaudio"
	BackendOSS       = "oss"
)

// Sample formats carried on the raw byte stream
const (
	FormatU8    = "u8"
	FormatS16LE = "s16le"
)

// Config holds audio configuration
type Config struct {
	Backend         string
	DeviceID        int
	Path            string
	SampleRate      int
	Channels        int
	Format          string
	FramesPerBuffer int
	Latency         LatencyMode
}

// DefaultConfig returns the default audio configuration
// The stream format matches a freshly opened /dev/dsp: 8kHz, mono, unsigned 8 bit.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendPortAudio,
		DeviceID:        -1, // -1 means use default device
		Path:            "/dev/dsp",
		SampleRate:      8000,
		Channels:        1,
		Format:          FormatU8,
		FramesPerBuffer: 1024,
		Latency:         HighStability,
	}
}

// BytesPerSample returns the width of one sample in format
func BytesPerSample(format string) (int, error) {
	switch format {
	case FormatU8:
		return 1, nil
	case FormatS16LE:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported sample format: %s", format)
	}
}

// ByteRate returns the number of stream bytes per second for config
func (c Config) ByteRate() (int, error) {
	width, err := BytesPerSample(c.Format)
	if err != nil {
		return 0, err
	}
	return c.SampleRate * c.Channels * width, nil
}

// Validate checks the configuration before a device is opened
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPortAudio, BackendOSS:
	default:
		return fmt.Errorf("invalid backend: %s (must be '%s' or '%s')", c.Backend, BackendPortAudio, BackendOSS)
	}

	if _, err := BytesPerSample(c.Format); err != nil {
		return err
	}

	if c.Backend == BackendOSS && c.Path == "" {
		return fmt.Errorf("device path cannot be empty for the %s backend", BackendOSS)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}

	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", c.Channels)
	}

	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid frames per buffer: %d", c.FramesPerBuffer)
	}

	return nil
}

// Device is a duplex audio device moving raw sample bytes.
// Read blocks until a chunk is captured; Write blocks until the chunk is queued
// for playback. A Read returning io.EOF or no data ends the stream.
type Device interface {
	io.ReadWriteCloser

	// Name returns a human readable device name
	Name() string
}

// WarnFunc receives recoverable stream conditions such as overruns
type WarnFunc func(format string, v ...interface{})

// Open opens the device selected by config.Backend
func Open(config Config, warn WarnFunc) (Device, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}

	if config.Backend == BackendOSS {
		dev, err := OpenOSS(config)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}

	dev, err := OpenPortAudio(config, warn)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
