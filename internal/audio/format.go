package audio

import (
	"fmt"
	"time"
)

// Default capture format parameters
const (
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16

	// DefaultBlockSamples matches a 32000-byte read buffer of 16-bit samples
	DefaultBlockSamples = 16000
)

// SampleBlock is one read from a PCM source: signed 16-bit mono samples
type SampleBlock []int16

// Format describes the PCM layout of a capture session. It is fixed for the
// lifetime of a session.
type Format struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultFormat returns 16 kHz, mono, 16-bit PCM
func DefaultFormat() Format {
	return Format{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		BitsPerSample: DefaultBitsPerSample,
	}
}

// Validate checks that the format is one the encoder can serialize
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("only mono audio is supported, got %d channels", f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("only 16-bit PCM is supported, got %d bits", f.BitsPerSample)
	}
	return nil
}

// ByteRate returns SampleRate * Channels * BitsPerSample / 8
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// BlockAlign returns Channels * BitsPerSample / 8
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration returns the play time of n samples in this format
func (f Format) Duration(samples int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
