//go:build !portaudio

package capture

import (
	"errors"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

// PortAudioAvailable reports whether the binary was built with microphone support
const PortAudioAvailable = false

// ErrPortAudioUnavailable is returned when microphone capture was not compiled in
var ErrPortAudioUnavailable = errors.New("portaudio support not compiled in; rebuild with -tags portaudio")

// PortAudioOpener is a stub; build with -tags portaudio for the real device source
type PortAudioOpener struct {
	BlockSamples int
}

// Open always fails in builds without portaudio
func (o PortAudioOpener) Open(audio.Format) (Source, error) {
	return nil, ErrPortAudioUnavailable
}
