package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skypro1111/utterance-capture/internal/audio"
	"github.com/skypro1111/utterance-capture/internal/metrics"
)

// WavFile is one encoded utterance: a complete 44-byte-header WAV image plus
// the metadata it was produced from
type WavFile struct {
	ID        string        `json:"id"`
	Data      []byte        `json:"-"`
	Format    audio.Format  `json:"format"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Samples   int           `json:"samples"`
}

// Sink receives encoded utterances
type Sink interface {
	OnUtterance(ctx context.Context, wav WavFile) error
}

// Func adapts a function to the Sink interface
type Func func(ctx context.Context, wav WavFile) error

// OnUtterance calls f(ctx, wav)
func (f Func) OnUtterance(ctx context.Context, wav WavFile) error {
	return f(ctx, wav)
}

// Multi fans each utterance out to every sink in order. All sinks are called
// even if one fails; the failures are joined.
type Multi []Sink

// OnUtterance delivers wav to every sink
func (m Multi) OnUtterance(ctx context.Context, wav WavFile) error {
	var errs []error
	for _, s := range m {
		if err := s.OnUtterance(ctx, wav); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every utterance
var Discard Sink = Func(func(context.Context, WavFile) error { return nil })

type instrumented struct {
	name    string
	sink    Sink
	metrics *metrics.Metrics
}

// Instrument records delivery counts and latency for s under name
func Instrument(name string, s Sink, m *metrics.Metrics) Sink {
	return &instrumented{name: name, sink: s, metrics: m}
}

func (i *instrumented) OnUtterance(ctx context.Context, wav WavFile) error {
	start := time.Now()
	err := i.sink.OnUtterance(ctx, wav)
	i.metrics.RecordSinkDelivery(i.name, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%s sink: %w", i.name, err)
	}
	return nil
}
