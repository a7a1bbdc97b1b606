package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/yok-tottii/micloop/internal/echo"
	"github.com/yok-tottii/micloop/internal/logger"
	"github.com/yok-tottii/micloop/internal/timer"
)

// Mode represents how audio is looped back
type Mode int

const (
	// Immediate writes every chunk straight back
	Immediate Mode = iota
	// Delayed replays audio through the delay engine
	Delayed
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case Immediate:
		return "Immediate"
	case Delayed:
		return "Delayed"
	default:
		return "Unknown"
	}
}

// Options holds session configuration
type Options struct {
	// Delay in seconds, 0 selects Immediate mode
	Delay  float64
	Engine echo.EngineConfig
	// ChunkSize is the largest read, capped at echo.MaxChunk
	ChunkSize int
	Clock     timer.Clock
	Logger    *logger.Logger
}

// DefaultOptions returns options for an immediate loop
func DefaultOptions() Options {
	return Options{
		Engine:    echo.DefaultEngineConfig(),
		ChunkSize: echo.MaxChunk,
		Clock:     timer.SystemClock{},
	}
}

// Result summarizes a finished session
type Result struct {
	Mode  Mode
	Stats echo.Stats
	// RingBytes is the frozen ring capacity, 0 if the delay never elapsed
	RingBytes int
	Duration  time.Duration
}

// Run loops audio from dev back into dev until the stream ends or ctx is
// cancelled. Both are a normal end and return a nil error. Read errors end
// the stream as well and are only logged.
func Run(ctx context.Context, dev io.ReadWriter, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = timer.SystemClock{}
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize > echo.MaxChunk {
		opts.ChunkSize = echo.MaxChunk
	}

	src := &contextReader{ctx: ctx, r: dev}
	buf := make([]byte, opts.ChunkSize)
	start := opts.Clock.Now()

	var (
		result Result
		err    error
	)
	if opts.Delay == 0 {
		result.Mode = Immediate
		opts.Logger.Info("looping back without delay")
		result.Stats, err = echo.Passthrough(src, dev, buf)
	} else {
		result.Mode = Delayed
		opts.Logger.Info("looping back with %.3fs delay", opts.Delay)
		result, err = runDelayed(src, dev, buf, opts)
	}
	result.Duration = opts.Clock.Now().Sub(start)

	if errors.Is(err, echo.ErrSourceFailed) {
		opts.Logger.Warn("stream ended: %v", err)
		err = nil
	}

	if err == nil {
		opts.Logger.InfoFields("session finished", map[string]interface{}{
			"mode":          result.Mode.String(),
			"chunks":        result.Stats.Chunks,
			"bytes_read":    result.Stats.BytesRead,
			"bytes_written": result.Stats.BytesWritten,
			"ring_bytes":    result.RingBytes,
			"duration":      result.Duration.String(),
		})
	}

	return result, err
}

func runDelayed(src io.Reader, dst io.Writer, buf []byte, opts Options) (Result, error) {
	result := Result{Mode: Delayed}

	engine, err := echo.NewEngine(opts.Engine, timer.New(opts.Clock, opts.Delay))
	if err != nil {
		return result, fmt.Errorf("failed to create delay engine: %w", err)
	}

	sink := &countingWriter{w: dst}

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			result.Stats.Chunks++
			result.Stats.BytesRead += int64(n)

			accumulating := engine.State() == echo.Accumulating
			err := engine.Process(buf[:n], sink)
			if accumulating && engine.State() == echo.Draining {
				result.RingBytes = engine.Cap()
				opts.Logger.Info("delay reached, replaying through a %d byte ring", engine.Cap())
			}
			if err != nil {
				result.Stats.BytesWritten = sink.n
				return result, err
			}
		}

		if rerr != nil {
			result.Stats.BytesWritten = sink.n
			if errors.Is(rerr, io.EOF) {
				return result, nil
			}
			return result, fmt.Errorf("%w: %w", echo.ErrSourceFailed, rerr)
		}
		if n <= 0 {
			result.Stats.BytesWritten = sink.n
			return result, nil
		}
	}
}

// contextReader reports io.EOF once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, io.EOF
	}
	return c.r.Read(p)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
