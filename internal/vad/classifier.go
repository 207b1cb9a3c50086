package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultAmplitudeThreshold is the 16-bit magnitude above which a sample
// counts as voice.
const DefaultAmplitudeThreshold int32 = 3000

// Activity is the classification of a single block
type Activity int

const (
	Silence Activity = iota
	Speech
)

func (a Activity) String() string {
	switch a {
	case Speech:
		return "speech"
	case Silence:
		return "silence"
	default:
		return fmt.Sprintf("Activity(%d)", int(a))
	}
}

// Classify returns Silence iff every sample's absolute value is at most
// threshold. It stops at the first sample above threshold.
func Classify(block []int16, threshold int32) Activity {
	for _, s := range block {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > threshold {
			return Speech
		}
	}
	return Silence
}

// Peak returns the largest sample magnitude in block
func Peak(block []int16) int32 {
	var peak int32
	for _, s := range block {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Classifier wraps Classify with an adjustable threshold and statistics
type Classifier struct {
	threshold int32

	// Statistics
	totalBlocks   uint64
	speechBlocks  uint64
	lastPeak      int32
	lastProcessed time.Time

	mu sync.RWMutex
}

// ClassifierStats represents classifier statistics
type ClassifierStats struct {
	Threshold        int32     `json:"amplitude_threshold"`
	TotalBlocks      uint64    `json:"total_blocks"`
	SpeechBlocks     uint64    `json:"speech_blocks"`
	SpeechPercentage float64   `json:"speech_percentage"`
	LastPeak         int32     `json:"last_peak"`
	LastProcessed    time.Time `json:"last_processed"`
}

// NewClassifier creates a classifier for the given amplitude threshold
func NewClassifier(threshold int32) (*Classifier, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Classifier{threshold: threshold}, nil
}

func validateThreshold(threshold int32) error {
	if threshold < 0 || threshold > math.MaxInt16 {
		return fmt.Errorf("amplitude threshold must be between 0 and %d, got %d", math.MaxInt16, threshold)
	}
	return nil
}

// Classify classifies block and records it in the statistics. The block is
// scanned once; its peak decides the activity and is kept as LastPeak.
func (c *Classifier) Classify(block []int16) Activity {
	peak := Peak(block)

	c.mu.Lock()
	defer c.mu.Unlock()

	activity := Silence
	if peak > c.threshold {
		activity = Speech
	}

	c.totalBlocks++
	if activity == Speech {
		c.speechBlocks++
	}
	c.lastPeak = peak
	c.lastProcessed = time.Now()

	return activity
}

// Threshold returns the current amplitude threshold
func (c *Classifier) Threshold() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// UpdateThreshold changes the amplitude threshold for subsequent blocks
func (c *Classifier) UpdateThreshold(threshold int32) error {
	if err := validateThreshold(threshold); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.threshold = threshold
	return nil
}

// GetStats returns current classifier statistics
func (c *Classifier) GetStats() ClassifierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	speechPercentage := float64(0)
	if c.totalBlocks > 0 {
		speechPercentage = float64(c.speechBlocks) / float64(c.totalBlocks) * 100
	}

	return ClassifierStats{
		Threshold:        c.threshold,
		TotalBlocks:      c.totalBlocks,
		SpeechBlocks:     c.speechBlocks,
		SpeechPercentage: speechPercentage,
		LastPeak:         c.lastPeak,
		LastProcessed:    c.lastProcessed,
	}
}
