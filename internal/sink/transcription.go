package sink

import (
	"context"
	"log/slog"

	"github.com/skypro1111/utterance-capture/internal/transcription"
)

// Transcriber is the part of transcription.Client the sink needs
type Transcriber interface {
	Transcribe(ctx context.Context, request *transcription.Request) (*transcription.Response, error)
}

// TranscriptionSink forwards each utterance to a transcription API
type TranscriptionSink struct {
	client Transcriber
	logger *slog.Logger
}

// NewTranscriptionSink wraps client
func NewTranscriptionSink(client Transcriber, logger *slog.Logger) *TranscriptionSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptionSink{client: client, logger: logger}
}

// OnUtterance posts the WAV and logs the returned text
func (s *TranscriptionSink) OnUtterance(ctx context.Context, wav WavFile) error {
	resp, err := s.client.Transcribe(ctx, &transcription.Request{
		UtteranceID: wav.ID,
		Audio:       wav.Data,
		SampleRate:  wav.Format.SampleRate,
		Duration:    wav.Duration,
		StartTime:   wav.StartTime,
		EndTime:     wav.EndTime,
	})
	if err != nil {
		return err
	}

	s.logger.Info("Transcription received",
		slog.String("utterance_id", wav.ID),
		slog.String("text", resp.Text),
		slog.Float64("confidence", float64(resp.Confidence)),
	)
	return nil
}
