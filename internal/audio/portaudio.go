package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice implements Device on a blocking duplex PortAudio stream.
// Captured frames are handed out as raw bytes; written bytes are collected
// until a whole frame can be played.
type PortAudioDevice struct {
	config     Config
	name       string
	stream     *portaudio.Stream
	warn       WarnFunc
	frameBytes int

	// exactly one pair is used, depending on config.Format
	in8, out8   []uint8
	in16, out16 []int16

	captured []byte
	pending  []byte
	playback []byte
	closed   bool
}

// ListDevices returns the devices able to both record and play
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []DeviceInfo
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 || dev.MaxOutputChannels <= 0 {
			continue
		}
		result = append(result, DeviceInfo{
			ID:        i,
			Name:      dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

// OpenPortAudio initializes PortAudio and starts a duplex stream
func OpenPortAudio(config Config, warn WarnFunc) (*PortAudioDevice, error) {
	width, err := BytesPerSample(config.Format)
	if err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	d := &PortAudioDevice{
		config:     config,
		warn:       warn,
		frameBytes: config.FramesPerBuffer * config.Channels * width,
	}
	if err := d.open(); err != nil {
		portaudio.Terminate()
		return nil, err
	}

	return d, nil
}

func (d *PortAudioDevice) open() error {
	input, output, err := selectDevices(d.config.DeviceID)
	if err != nil {
		return err
	}

	if input.MaxInputChannels < d.config.Channels {
		return fmt.Errorf("device '%s' has %d input channels, %d requested",
			input.Name, input.MaxInputChannels, d.config.Channels)
	}
	if output.MaxOutputChannels < d.config.Channels {
		return fmt.Errorf("device '%s' has %d output channels, %d requested",
			output.Name, output.MaxOutputChannels, d.config.Channels)
	}

	// Set latency
	var inLatency, outLatency time.Duration
	switch d.config.Latency {
	case LowLatency:
		inLatency, outLatency = input.DefaultLowInputLatency, output.DefaultLowOutputLatency
	default:
		inLatency, outLatency = input.DefaultHighInputLatency, output.DefaultHighOutputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input,
			Channels: d.config.Channels,
			Latency:  inLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   output,
			Channels: d.config.Channels,
			Latency:  outLatency,
		},
		SampleRate:      float64(d.config.SampleRate),
		FramesPerBuffer: d.config.FramesPerBuffer,
	}

	samples := d.config.FramesPerBuffer * d.config.Channels
	var stream *portaudio.Stream
	switch d.config.Format {
	case FormatS16LE:
		d.in16, d.out16 = make([]int16, samples), make([]int16, samples)
		stream, err = portaudio.OpenStream(params, d.in16, d.out16)
	default:
		d.in8, d.out8 = make([]uint8, samples), make([]uint8, samples)
		stream, err = portaudio.OpenStream(params, d.in8, d.out8)
	}
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	d.stream = stream
	d.captured = make([]byte, d.frameBytes)
	d.playback = make([]byte, 0, d.frameBytes)
	if input == output {
		d.name = input.Name
	} else {
		d.name = input.Name + " -> " + output.Name
	}
	return nil
}

// selectDevices resolves a device ID to the input and output devices.
// -1 picks the system default input and output devices.
func selectDevices(id int) (*portaudio.DeviceInfo, *portaudio.DeviceInfo, error) {
	if id == -1 {
		input, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		output, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get default output device: %w", err)
		}
		return input, output, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if id < 0 || id >= len(devices) {
		return nil, nil, fmt.Errorf("invalid device ID: %d", id)
	}

	return devices[id], devices[id], nil
}

// Name returns the device name
func (d *PortAudioDevice) Name() string {
	return d.name
}

// FrameBytes returns the number of bytes captured per stream read
func (d *PortAudioDevice) FrameBytes() int {
	return d.frameBytes
}

// Read returns captured bytes, blocking for a new frame when none are left
func (d *PortAudioDevice) Read(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("device closed")
	}

	if len(d.pending) == 0 {
		err := d.stream.Read()
		if errors.Is(err, portaudio.InputOverflowed) {
			d.warn("input overflowed on %s", d.name)
		} else if err != nil {
			return 0, fmt.Errorf("failed to read stream: %w", err)
		}
		d.capture()
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Write queues p for playback. Full frames are played immediately, the
// remainder waits for the next Write or for Close.
func (d *PortAudioDevice) Write(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("device closed")
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), d.frameBytes-len(d.playback))
		d.playback = append(d.playback, p[:n]...)
		p = p[n:]

		if len(d.playback) == d.frameBytes {
			d.render()
			err := d.stream.Write()
			if errors.Is(err, portaudio.OutputUnderflowed) {
				d.warn("output underflowed on %s", d.name)
			} else if err != nil {
				d.playback = d.playback[:0]
				return written, fmt.Errorf("failed to write stream: %w", err)
			}
			d.playback = d.playback[:0]
		}
		written += n
	}

	return written, nil
}

// capture copies the input sample buffer into the byte view
func (d *PortAudioDevice) capture() {
	if d.in16 != nil {
		for i, sample := range d.in16 {
			binary.LittleEndian.PutUint16(d.captured[i*2:], uint16(sample))
		}
	} else {
		copy(d.captured, d.in8)
	}
	d.pending = d.captured
}

// render copies the queued bytes into the output sample buffer
func (d *PortAudioDevice) render() {
	if d.out16 != nil {
		for i := range d.out16 {
			d.out16[i] = int16(binary.LittleEndian.Uint16(d.playback[i*2:]))
		}
	} else {
		copy(d.out8, d.playback)
	}
}

// padPlayback fills the queued partial frame with silence
func (d *PortAudioDevice) padPlayback() {
	silence := byte(0)
	if d.config.Format == FormatU8 {
		silence = 0x80
	}
	for len(d.playback) < d.frameBytes {
		d.playback = append(d.playback, silence)
	}
}

// Close plays a queued partial frame padded with silence, then stops the
// stream and releases PortAudio. All steps run; the first error is returned.
func (d *PortAudioDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}

	if len(d.playback) > 0 {
		d.padPlayback()
		d.render()
		if err := d.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			keep(fmt.Errorf("failed to flush stream: %w", err))
		}
		d.playback = d.playback[:0]
	}

	if err := d.stream.Stop(); err != nil {
		keep(fmt.Errorf("failed to stop stream: %w", err))
	}

	if err := d.stream.Close(); err != nil {
		keep(fmt.Errorf("failed to close stream: %w", err))
	}

	// Terminate PortAudio
	if err := portaudio.Terminate(); err != nil {
		keep(fmt.Errorf("failed to terminate PortAudio: %w", err))
	}

	return first
}
