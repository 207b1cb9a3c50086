//go:build portaudio

package capture

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

// PortAudioAvailable reports whether the binary was built with microphone support
const PortAudioAvailable = true

// PortAudioOpener opens the default input device
type PortAudioOpener struct {
	BlockSamples int
}

// Open initializes PortAudio and starts a mono 16-bit input stream
func (o PortAudioOpener) Open(format audio.Format) (Source, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	frames := o.BlockSamples
	if frames <= 0 {
		frames = audio.DefaultBlockSamples
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buf := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open default input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	return &PortAudioSource{stream: stream, buf: buf}, nil
}

// PortAudioSource reads blocks from a running PortAudio input stream
type PortAudioSource struct {
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

// Read blocks until one buffer of frames has been captured
func (s *PortAudioSource) Read() (audio.SampleBlock, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}

	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return nil, Transient(err)
		}
		return nil, fmt.Errorf("portaudio read failed: %w", err)
	}
	return s.buf, nil
}

// Close stops the stream and terminates PortAudio
func (s *PortAudioSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
}
