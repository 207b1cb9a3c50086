package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture sources
const (
	SourceUDP       = "udp"
	SourceReader    = "reader"
	SourcePortAudio = "portaudio"
)

// Config represents the complete service configuration
type Config struct {
	Capture      CaptureConfig      `yaml:"capture"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Sink         SinkConfig         `yaml:"sink"`
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// CaptureConfig contains PCM source configuration
type CaptureConfig struct {
	Source        string `yaml:"source"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	BitDepth      int    `yaml:"bit_depth"`
	BlockSamples  int    `yaml:"block_samples"`
	UDPAddress    string `yaml:"udp_address"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	InputPath     string `yaml:"input_path"` // "-" reads stdin
	Realtime      bool   `yaml:"realtime"`   // pace reader input to the sample rate
	Autostart     bool   `yaml:"autostart"`
}

// SegmentationConfig contains silence classifier and segmenter thresholds
type SegmentationConfig struct {
	AmplitudeThreshold int32 `yaml:"amplitude_threshold"`
	SilenceThresholdMs int   `yaml:"silence_threshold_ms"`
}

// SinkConfig contains utterance sink configuration
type SinkConfig struct {
	OutputDir     string              `yaml:"output_dir"`
	QueueSize     int                 `yaml:"queue_size"`
	KeepRecent    int                 `yaml:"keep_recent"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
	Language   string `yaml:"language"`
	Model      string `yaml:"model"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"` // stdout, stderr or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used for any field a file leaves unset
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			Source:        SourceUDP,
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			BlockSamples:  16000,
			UDPAddress:    "127.0.0.1:9000",
			ReadTimeoutMs: 500,
			InputPath:     "-",
			Realtime:      true,
		},
		Segmentation: SegmentationConfig{
			AmplitudeThreshold: 3000,
			SilenceThresholdMs: 1500,
		},
		Sink: SinkConfig{
			OutputDir:  "recordings",
			QueueSize:  16,
			KeepRecent: 50,
			Transcription: TranscriptionConfig{
				Timeout:    30,
				MaxRetries: 3,
			},
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return config, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration. Every
// section is checked and all failures are reported together.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Capture.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture config: %w", err))
	}

	if err := c.Segmentation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("segmentation config: %w", err))
	}

	if err := c.Sink.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sink config: %w", err))
	}

	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http config: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging config: %w", err))
	}

	return errors.Join(errs...)
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Source {
	case SourceUDP:
		if c.UDPAddress == "" {
			return fmt.Errorf("udp_address cannot be empty for the udp source")
		}
	case SourceReader:
		if c.InputPath == "" {
			return fmt.Errorf("input_path cannot be empty for the reader source")
		}
	case SourcePortAudio:
	default:
		return fmt.Errorf("source must be one of [udp, reader, portaudio], got '%s'", c.Source)
	}

	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}

	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", c.Channels)
	}

	if c.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", c.BitDepth)
	}

	if c.BlockSamples < 1 {
		return fmt.Errorf("block_samples must be positive, got %d", c.BlockSamples)
	}

	if c.ReadTimeoutMs < 1 {
		return fmt.Errorf("read_timeout_ms must be positive, got %d", c.ReadTimeoutMs)
	}

	return nil
}

// Validate validates segmentation configuration
func (s *SegmentationConfig) Validate() error {
	if s.AmplitudeThreshold < 0 || s.AmplitudeThreshold > 32767 {
		return fmt.Errorf("amplitude_threshold must be between 0 and 32767, got %d", s.AmplitudeThreshold)
	}

	if s.SilenceThresholdMs < 1 {
		return fmt.Errorf("silence_threshold_ms must be positive, got %d", s.SilenceThresholdMs)
	}

	return nil
}

// Validate validates sink configuration
func (s *SinkConfig) Validate() error {
	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.KeepRecent < 0 {
		return fmt.Errorf("keep_recent cannot be negative, got %d", s.KeepRecent)
	}

	if err := s.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	return nil
}

// Validate validates transcription configuration. Disabled transcription is
// not checked further.
func (t *TranscriptionConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits cannot be negative")
	}

	return nil
}

// GetReadTimeout returns the source read timeout as a time.Duration
func (c *CaptureConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// GetSilenceThreshold returns the silence threshold as a time.Duration
func (s *SegmentationConfig) GetSilenceThreshold() time.Duration {
	return time.Duration(s.SilenceThresholdMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// Sanitized returns a copy safe to expose over the API
func (c Config) Sanitized() Config {
	if c.Sink.Transcription.APIKey != "" {
		c.Sink.Transcription.APIKey = "***"
	}
	return c
}
