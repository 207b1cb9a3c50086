package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

// ReaderOpener opens raw PCM16LE input from a file, or stdin for "-"
type ReaderOpener struct {
	Path         string
	BlockSamples int
	Realtime     bool
}

// Open opens the configured path
func (o ReaderOpener) Open(format audio.Format) (Source, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	var rc io.ReadCloser
	if o.Path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(o.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open PCM input %s: %w", o.Path, err)
		}
		rc = f
	}

	return NewReaderSource(rc, format, o.BlockSamples, o.Realtime), nil
}

// ReaderSource decodes raw little-endian PCM from a reader in fixed-size
// blocks. The final block may be short; io.EOF after it ends the session.
type ReaderSource struct {
	r        io.ReadCloser
	format   audio.Format
	realtime bool

	buffer []byte
	block  audio.SampleBlock

	started   time.Time
	delivered int
	closed    bool
}

// NewReaderSource wraps r. With realtime set, Read paces delivery to the
// format's sample rate as a live device would.
func NewReaderSource(r io.ReadCloser, format audio.Format, blockSamples int, realtime bool) *ReaderSource {
	if blockSamples <= 0 {
		blockSamples = audio.DefaultBlockSamples
	}
	return &ReaderSource{
		r:        r,
		format:   format,
		realtime: realtime,
		buffer:   make([]byte, blockSamples*2),
	}
}

// Read returns the next block
func (s *ReaderSource) Read() (audio.SampleBlock, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}

	n, err := io.ReadFull(s.r, s.buffer)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short final block; a trailing odd byte is dropped
	case err != nil:
		return nil, err
	}

	if n < 2 {
		return nil, io.EOF
	}

	s.block = decodePCM16LE(s.block, s.buffer[:n])
	s.pace(len(s.block))
	return s.block, nil
}

func (s *ReaderSource) pace(samples int) {
	if !s.realtime {
		return
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.delivered += samples
	if wait := time.Until(s.started.Add(s.format.Duration(s.delivered))); wait > 0 {
		time.Sleep(wait)
	}
}

// Close closes the underlying reader
func (s *ReaderSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.r.Close()
}
