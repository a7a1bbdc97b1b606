package echo

import (
	"errors"
	"fmt"
	"io"

	"github.com/yok-tottii/micloop/internal/timer"
)

// State represents the phase of a delay engine
type State int

const (
	// Accumulating means incoming audio is only stored
	Accumulating State = iota
	// Draining means the buffer is a ring replaying delayed audio
	Draining
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Accumulating:
		return "Accumulating"
	case Draining:
		return "Draining"
	default:
		return "Unknown"
	}
}

// DefaultGrowIncrement is the step by which the accumulator grows
const DefaultGrowIncrement = 300000

// ErrBufferExhausted is returned when the delay buffer cannot be sized
var ErrBufferExhausted = errors.New("delay buffer exhausted")

// EngineConfig holds delay engine configuration
type EngineConfig struct {
	// GrowIncrement is the number of bytes added each time the accumulator is full
	GrowIncrement int
	// MaxBytes caps the accumulator size, 0 means no cap
	MaxBytes int
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		GrowIncrement: DefaultGrowIncrement,
		MaxBytes:      0,
	}
}

// Engine delays audio by a fixed amount of time.
//
// While Accumulating every chunk is appended to a growable buffer and
// nothing is emitted. Once the timer expires the buffer is shrunk to the
// accumulated length and used as a ring: each chunk first emits the bytes
// stored at the cursor, then overwrites them. The ring capacity never
// changes after the transition.
type Engine struct {
	timer    *timer.ElapsedTimer
	state    State
	buf      []byte
	length   int
	cursor   int
	grow     int
	maxBytes int
}

// NewEngine creates an engine in the Accumulating state driven by t
func NewEngine(config EngineConfig, t *timer.ElapsedTimer) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("timer is required")
	}
	if config.GrowIncrement <= 0 {
		return nil, fmt.Errorf("invalid grow increment: %d", config.GrowIncrement)
	}
	if config.MaxBytes < 0 {
		return nil, fmt.Errorf("invalid max bytes: %d", config.MaxBytes)
	}

	return &Engine{
		timer:    t,
		state:    Accumulating,
		grow:     config.GrowIncrement,
		maxBytes: config.MaxBytes,
	}, nil
}

// State returns the current engine state
func (e *Engine) State() State {
	return e.state
}

// Len returns the number of bytes accumulated or, once Draining, the ring size
func (e *Engine) Len() int {
	return e.length
}

// Cap returns the allocated buffer size
func (e *Engine) Cap() int {
	return len(e.buf)
}

// Cursor returns the next ring read/write position
func (e *Engine) Cursor() int {
	return e.cursor
}

// Process handles one chunk. While Accumulating nothing is written to sink.
// The timer is consulted before the chunk is handled, so the chunk that
// sees it expire is the first one to go through the ring.
func (e *Engine) Process(chunk []byte, sink io.Writer) error {
	if len(chunk) == 0 {
		return nil
	}

	// A ring of zero bytes cannot delay anything, so the switch waits for
	// the first stored chunk.
	if e.state == Accumulating && e.length > 0 && e.timer.Expired() {
		if err := e.freeze(); err != nil {
			return err
		}
	}

	if e.state == Accumulating {
		return e.accumulate(chunk)
	}
	return e.drain(chunk, sink)
}

func (e *Engine) accumulate(chunk []byte) error {
	need := e.length + len(chunk)
	if need > len(e.buf) {
		size := len(e.buf)
		for size < need {
			size += e.grow
		}
		if e.maxBytes > 0 && size > e.maxBytes {
			return fmt.Errorf("%w: growing to %d bytes exceeds limit of %d", ErrBufferExhausted, size, e.maxBytes)
		}

		buf, err := allocate(size)
		if err != nil {
			return fmt.Errorf("failed to grow accumulator: %w", err)
		}
		copy(buf, e.buf[:e.length])
		e.buf = buf
	}

	e.length += copy(e.buf[e.length:], chunk)
	return nil
}

// freeze shrinks the accumulator to its length and turns it into the ring
func (e *Engine) freeze() error {
	buf, err := allocate(e.length)
	if err != nil {
		return fmt.Errorf("failed to shrink accumulator: %w", err)
	}
	copy(buf, e.buf[:e.length])

	e.buf = buf
	e.cursor = 0
	e.state = Draining
	return nil
}

// drain emits the ring window at the cursor and stores chunk over it.
// The window is split at the end of the ring. Bytes are overwritten only
// after the sink accepted them, and the cursor moves by exactly that much.
func (e *Engine) drain(chunk []byte, sink io.Writer) error {
	size := len(e.buf)

	for len(chunk) > 0 {
		span := min(len(chunk), size-e.cursor)
		window := e.buf[e.cursor : e.cursor+span]

		n, err := sink.Write(window)
		if n > span {
			n = span
		}
		copy(window[:n], chunk[:n])
		e.cursor = (e.cursor + n) % size
		chunk = chunk[n:]

		if err != nil {
			return fmt.Errorf("%w: %w", ErrSinkFailed, err)
		}
		if n < span {
			return fmt.Errorf("%w: %w", ErrSinkFailed, io.ErrShortWrite)
		}
	}

	return nil
}

// allocate turns an out of range allocation into ErrBufferExhausted
func allocate(size int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: cannot allocate %d bytes: %v", ErrBufferExhausted, size, r)
		}
	}()
	return make([]byte, size), nil
}
