package echo

import (
	"errors"
	"fmt"
	"io"
)

// MaxChunk is the largest number of bytes moved by a single device read
const MaxChunk = 4096

var (
	// ErrSourceFailed wraps a read error that ended the stream early
	ErrSourceFailed = errors.New("audio source failed")
	// ErrSinkFailed wraps a write error
	ErrSinkFailed = errors.New("audio sink failed")
)

// Stats counts the traffic handled by a loop
type Stats struct {
	Chunks       int
	BytesRead    int64
	BytesWritten int64
}

// Passthrough copies chunks from src to dst unchanged until a read returns
// no data or an error. io.EOF is the normal end of stream and is not returned;
// other read errors are wrapped in ErrSourceFailed, write errors in ErrSinkFailed.
// buf is reused for every chunk; a nil buf gets MaxChunk bytes.
func Passthrough(src io.Reader, dst io.Writer, buf []byte) (Stats, error) {
	var stats Stats
	if len(buf) == 0 {
		buf = make([]byte, MaxChunk)
	}

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			stats.Chunks++
			stats.BytesRead += int64(n)

			nw, werr := dst.Write(buf[:n])
			stats.BytesWritten += int64(nw)
			if werr != nil {
				return stats, fmt.Errorf("%w: %w", ErrSinkFailed, werr)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("%w: %w", ErrSourceFailed, rerr)
		}
		if n <= 0 {
			return stats, nil
		}
	}
}
