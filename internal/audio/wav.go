package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header
const WAVHeaderSize = 44

// ErrPayloadTooLarge is returned when the PCM payload cannot be addressed by
// the 32-bit RIFF size fields.
var ErrPayloadTooLarge = errors.New("wav payload exceeds 32-bit size fields")

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewWAVHeader builds the header for dataSize bytes of PCM in the given format.
// It performs no I/O.
func NewWAVHeader(format Format, dataSize uint32) WAVHeader {
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.BlockAlign()),
		BitsPerSample: uint16(format.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV concatenates blocks in order and encodes them as a 16-bit PCM WAV
// file image: the 44-byte header followed by little-endian samples.
func EncodeWAV(blocks []SampleBlock, format Format) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wav format: %w", err)
	}

	totalSamples := 0
	for _, block := range blocks {
		totalSamples += len(block)
	}
	if totalSamples == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	bytesPerSample := format.BitsPerSample / 8
	if uint64(totalSamples)*uint64(bytesPerSample) > math.MaxUint32-36 {
		return nil, fmt.Errorf("%w: %d samples", ErrPayloadTooLarge, totalSamples)
	}
	dataSize := uint32(totalSamples * bytesPerSample)

	header := NewWAVHeader(format, dataSize)

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+int(dataSize)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	for i, block := range blocks {
		if len(block) == 0 {
			continue
		}
		if err := binary.Write(buf, binary.LittleEndian, []int16(block)); err != nil {
			return nil, fmt.Errorf("failed to write audio block %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes WAV format data back to PCM-16 samples
func DecodeWAV(data []byte) ([]int16, Format, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, Format{}, err
	}

	if header.AudioFormat != 1 {
		return nil, Format{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels != 1 {
		return nil, Format{}, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	payload := data[WAVHeaderSize:]
	if uint64(header.Subchunk2Size) > uint64(len(payload)) {
		return nil, Format{}, fmt.Errorf("truncated WAV data: header declares %d bytes, have %d",
			header.Subchunk2Size, len(payload))
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, Format{}, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, samples); err != nil {
		return nil, Format{}, fmt.Errorf("failed to read audio samples: %w", err)
	}

	format := Format{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
	}
	return samples, format, nil
}

func readHeader(data []byte) (WAVHeader, error) {
	var header WAVHeader
	if err := ValidateWAV(data); err != nil {
		return header, err
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return header, fmt.Errorf("failed to read WAV header: %w", err)
	}
	return header, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVInfo is the format and payload size read from a WAV header
type WAVInfo struct {
	Format     Format        `json:"format"`
	DataSize   uint32        `json:"data_size_bytes"`
	NumSamples uint32        `json:"num_samples"`
	Duration   time.Duration `json:"duration"`
}

// GetWAVInfo reads the header of an encoded utterance. Only layouts EncodeWAV
// can produce are accepted.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	format := Format{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("unsupported WAV format: %w", err)
	}

	numSamples := header.Subchunk2Size / uint32(format.BlockAlign())
	return &WAVInfo{
		Format:     format,
		DataSize:   header.Subchunk2Size,
		NumSamples: numSamples,
		Duration:   format.Duration(int(numSamples)),
	}, nil
}
