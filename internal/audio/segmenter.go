package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/skypro1111/utterance-capture/internal/vad"
)

// DefaultSilenceThreshold is the trailing silence that ends an utterance
const DefaultSilenceThreshold = 1500 * time.Millisecond

// ErrEmptyBlock is returned by Process for a zero-length block
var ErrEmptyBlock = errors.New("empty sample block")

// SegmenterState represents the current state of the segmentation process
type SegmenterState int

const (
	StateQuiet SegmenterState = iota
	StateCollecting
)

func (s SegmenterState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	default:
		return "quiet"
	}
}

// SegmentingConfig contains configuration for the segmentation process
type SegmentingConfig struct {
	AmplitudeThreshold int32
	SilenceThreshold   time.Duration

	// SampleRate dates a silence run from the start of its first block rather
	// than from that block's arrival, so b silent blocks of duration d trip
	// the threshold once b*d reaches it. Zero starts the timer at the arrival
	// of the first silent block, which ends an utterance one block later.
	SampleRate int
}

// DefaultSegmentingConfig returns the thresholds used when none are configured
func DefaultSegmentingConfig() SegmentingConfig {
	return SegmentingConfig{
		AmplitudeThreshold: vad.DefaultAmplitudeThreshold,
		SilenceThreshold:   DefaultSilenceThreshold,
		SampleRate:         DefaultSampleRate,
	}
}

// Validate validates segmentation configuration
func (c SegmentingConfig) Validate() error {
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("silence threshold must be positive, got %v", c.SilenceThreshold)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("sample rate cannot be negative, got %d", c.SampleRate)
	}
	if _, err := vad.NewClassifier(c.AmplitudeThreshold); err != nil {
		return err
	}
	return nil
}

// Segmenter splits a stream of sample blocks into utterances. Speech blocks
// accumulate until a run of silence reaches the silence threshold; the
// silence blocks themselves are never part of the payload.
//
// A Segmenter is driven by exactly one goroutine and is not safe for
// concurrent use.
type Segmenter struct {
	config     SegmentingConfig
	classifier *vad.Classifier
	clock      func() time.Time

	utterance    *Buffer
	silenceStart time.Time // zero while speech is active or no silence run began
	lastActivity vad.Activity

	// Statistics
	utterancesEmitted uint64
	rejectedBlocks    uint64
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	State             string    `json:"state"`
	UtterancesEmitted uint64    `json:"utterances_emitted"`
	RejectedBlocks    uint64    `json:"rejected_blocks"`
	PendingBlocks     int       `json:"pending_blocks"`
	PendingSamples    int       `json:"pending_samples"`
	SilenceSince      time.Time `json:"silence_since,omitempty"`
}

// SegmenterOption configures a Segmenter
type SegmenterOption func(*Segmenter)

// WithClock replaces time.Now as the segmenter's time source
func WithClock(clock func() time.Time) SegmenterOption {
	return func(s *Segmenter) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithClassifier shares an existing classifier, e.g. so its stats are visible
// outside the capture goroutine.
func WithClassifier(c *vad.Classifier) SegmenterOption {
	return func(s *Segmenter) {
		if c != nil {
			s.classifier = c
		}
	}
}

// NewSegmenter creates a new segmenter in the quiet state
func NewSegmenter(config SegmentingConfig, opts ...SegmenterOption) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segmenting config: %w", err)
	}

	s := &Segmenter{
		config:    config,
		clock:     time.Now,
		utterance: NewBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.classifier == nil {
		classifier, err := vad.NewClassifier(config.AmplitudeThreshold)
		if err != nil {
			return nil, err
		}
		s.classifier = classifier
	}

	return s, nil
}

// Process consumes one block and returns the completed utterance if the block
// ended one, or nil. Empty blocks are rejected without any state change.
func (s *Segmenter) Process(block SampleBlock) (*Utterance, error) {
	if len(block) == 0 {
		s.rejectedBlocks++
		return nil, ErrEmptyBlock
	}

	now := s.clock()

	s.lastActivity = s.classifier.Classify(block)
	if s.lastActivity == vad.Speech {
		s.utterance.Append(block, now)
		s.silenceStart = time.Time{}
		return nil, nil
	}

	if s.silenceStart.IsZero() {
		s.silenceStart = now
		if s.config.SampleRate > 0 {
			s.silenceStart = now.Add(-time.Duration(len(block)) * time.Second / time.Duration(s.config.SampleRate))
		}
	}

	if now.Sub(s.silenceStart) < s.config.SilenceThreshold {
		return nil, nil
	}

	s.silenceStart = time.Time{}
	return s.emit(now), nil
}

// Flush emits any pending speech regardless of the silence timer and returns
// the segmenter to the quiet state. It returns nil if nothing was pending.
func (s *Segmenter) Flush() *Utterance {
	s.silenceStart = time.Time{}
	return s.emit(s.clock())
}

func (s *Segmenter) emit(now time.Time) *Utterance {
	u := s.utterance.Take(now)
	if u == nil {
		return nil
	}
	s.utterancesEmitted++
	return u
}

// State returns whether an utterance is in progress
func (s *Segmenter) State() SegmenterState {
	if s.utterance.Empty() {
		return StateQuiet
	}
	return StateCollecting
}

// HasPending reports whether speech is accumulated but not yet emitted
func (s *Segmenter) HasPending() bool {
	return !s.utterance.Empty()
}

// LastActivity returns the classification of the most recent accepted block
func (s *Segmenter) LastActivity() vad.Activity {
	return s.lastActivity
}

// Classifier returns the classifier used by this segmenter
func (s *Segmenter) Classifier() *vad.Classifier {
	return s.classifier
}

// Stats returns current segmenter statistics. Call it from the goroutine that
// drives the segmenter.
func (s *Segmenter) Stats() SegmenterStats {
	return SegmenterStats{
		State:             s.State().String(),
		UtterancesEmitted: s.utterancesEmitted,
		RejectedBlocks:    s.rejectedBlocks,
		PendingBlocks:     s.utterance.Len(),
		PendingSamples:    s.utterance.Samples(),
		SilenceSince:      s.silenceStart,
	}
}
