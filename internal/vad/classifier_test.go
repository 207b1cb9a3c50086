package vad

import (
	"math"
	"testing"
)

func TestClassifyBoundary(t *testing.T) {
	threshold := int32(3000)

	tests := []struct {
		name     string
		block    []int16
		expected Activity
	}{
		{name: "all zero", block: make([]int16, 64), expected: Silence},
		{name: "exactly threshold", block: []int16{0, 3000, 0}, expected: Silence},
		{name: "negative threshold", block: []int16{-3000, 12, -7}, expected: Silence},
		{name: "threshold plus one", block: []int16{0, 3001, 0}, expected: Speech},
		{name: "negative threshold minus one", block: []int16{-3001}, expected: Speech},
		{name: "min int16", block: []int16{math.MinInt16}, expected: Speech},
		{name: "max int16", block: []int16{math.MaxInt16}, expected: Speech},
		{name: "loud sample last", block: []int16{1, 2, 3, 4, 9000}, expected: Speech},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.block, threshold); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestClassifyMinInt16AtMaxThreshold(t *testing.T) {
	// |-32768| exceeds every representable threshold
	if got := Classify([]int16{math.MinInt16}, math.MaxInt16); got != Speech {
		t.Errorf("Expected speech for -32768 at threshold %d, got %v", math.MaxInt16, got)
	}
	if got := Classify([]int16{math.MaxInt16}, math.MaxInt16); got != Silence {
		t.Errorf("Expected silence for 32767 at threshold %d, got %v", math.MaxInt16, got)
	}
}

func TestPeak(t *testing.T) {
	if got := Peak([]int16{3, -900, 40}); got != 900 {
		t.Errorf("Expected peak 900, got %d", got)
	}
	if got := Peak([]int16{math.MinInt16}); got != 32768 {
		t.Errorf("Expected peak 32768, got %d", got)
	}
	if got := Peak(nil); got != 0 {
		t.Errorf("Expected peak 0 for empty block, got %d", got)
	}
}

func TestNewClassifierValidation(t *testing.T) {
	tests := []struct {
		name      string
		threshold int32
		expectErr bool
	}{
		{name: "default", threshold: DefaultAmplitudeThreshold, expectErr: false},
		{name: "zero", threshold: 0, expectErr: false},
		{name: "max int16", threshold: math.MaxInt16, expectErr: false},
		{name: "negative", threshold: -1, expectErr: true},
		{name: "above int16", threshold: math.MaxInt16 + 1, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.threshold)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestClassifierStats(t *testing.T) {
	c, err := NewClassifier(100)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	c.Classify([]int16{0, 50})
	c.Classify([]int16{0, 500})
	c.Classify([]int16{-200})
	c.Classify([]int16{10})

	stats := c.GetStats()
	if stats.TotalBlocks != 4 {
		t.Errorf("Expected 4 total blocks, got %d", stats.TotalBlocks)
	}
	if stats.SpeechBlocks != 2 {
		t.Errorf("Expected 2 speech blocks, got %d", stats.SpeechBlocks)
	}
	if stats.SpeechPercentage != 50 {
		t.Errorf("Expected 50%% speech, got %f", stats.SpeechPercentage)
	}
	if stats.LastPeak != 10 {
		t.Errorf("Expected last peak 10, got %d", stats.LastPeak)
	}
	if stats.LastProcessed.IsZero() {
		t.Error("Expected non-zero last processed time")
	}
}

func TestClassifierUpdateThreshold(t *testing.T) {
	c, err := NewClassifier(DefaultAmplitudeThreshold)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	block := []int16{2000}
	if got := c.Classify(block); got != Silence {
		t.Errorf("Expected silence at default threshold, got %v", got)
	}

	if err := c.UpdateThreshold(1000); err != nil {
		t.Fatalf("Failed to update threshold: %v", err)
	}
	if c.Threshold() != 1000 {
		t.Errorf("Expected threshold 1000, got %d", c.Threshold())
	}
	if got := c.Classify(block); got != Speech {
		t.Errorf("Expected speech after lowering threshold, got %v", got)
	}

	if err := c.UpdateThreshold(-5); err == nil {
		t.Error("Expected error for negative threshold")
	}
	if c.Threshold() != 1000 {
		t.Errorf("Expected threshold unchanged after invalid update, got %d", c.Threshold())
	}
}

func TestActivityString(t *testing.T) {
	if Speech.String() != "speech" || Silence.String() != "silence" {
		t.Errorf("Unexpected activity names: %s, %s", Speech, Silence)
	}
}

func TestClassifierMatchesPureClassify(t *testing.T) {
	c, err := NewClassifier(1000)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	blocks := [][]int16{
		{0, 0, 0},
		{1000, -1000},
		{0, 1001, 5},
		{-1001},
		{math.MinInt16, 0},
		{20, 999, -30000, 2},
	}
	for _, block := range blocks {
		want := Classify(block, 1000)
		if got := c.Classify(block); got != want {
			t.Errorf("Classify(%v) = %v, pure Classify says %v", block, got, want)
		}
		if got := c.GetStats().LastPeak; got != Peak(block) {
			t.Errorf("LastPeak for %v = %d, want %d", block, got, Peak(block))
		}
	}
}
