package capture

import (
	"errors"
	"fmt"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

var (
	// ErrTimeout is returned by Read when no audio arrived within the read
	// timeout. The worker retries without logging.
	ErrTimeout = errors.New("source read timed out")

	// ErrSourceClosed is returned by Read after Close
	ErrSourceClosed = errors.New("source closed")
)

// Source delivers blocks of samples in capture order. Read blocks until a
// block is available; the returned block may be reused by the next Read.
type Source interface {
	Read() (audio.SampleBlock, error)
	Close() error
}

// Opener opens a Source for the given format
type Opener interface {
	Open(format audio.Format) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(format audio.Format) (Source, error)

// Open calls f(format)
func (f OpenerFunc) Open(format audio.Format) (Source, error) {
	return f(format)
}

// TransientError marks a read failure the session can continue past
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient read error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so IsTransient reports true for it
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was marked with Transient
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func decodePCM16LE(dst audio.SampleBlock, src []byte) audio.SampleBlock {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make(audio.SampleBlock, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
	}
	return dst
}
