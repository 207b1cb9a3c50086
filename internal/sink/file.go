package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skypro1111/utterance-capture/internal/audio"
)

// SavedFile describes a WAV file written by a FileSink
type SavedFile struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	Bytes      int           `json:"bytes"`
	SampleRate int           `json:"sample_rate"`
	Samples    uint32        `json:"samples"`
	Duration   time.Duration `json:"duration"`
	SavedAt    time.Time     `json:"saved_at"`
}

// FileSink writes each utterance to audio_<unixmillis>.wav in a directory
// and remembers the most recent paths
type FileSink struct {
	dir        string
	keepRecent int
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	recent []SavedFile
	saved  uint64
}

// NewFileSink creates dir if needed. keepRecent bounds the history returned by
// Recent; zero disables it.
func NewFileSink(dir string, keepRecent int, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{
		dir:        dir,
		keepRecent: keepRecent,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// OnUtterance writes wav.Data to a new file. The recorded duration and
// sample count are read back from the WAV header.
func (s *FileSink) OnUtterance(_ context.Context, wav WavFile) error {
	info, err := audio.GetWAVInfo(wav.Data)
	if err != nil {
		return fmt.Errorf("utterance %s: %w", wav.ID, err)
	}
	duration := info.Duration

	savedAt := s.now()
	path, err := s.create(savedAt, wav.Data)
	if err != nil {
		return err
	}

	s.logger.Info("WAV saved",
		slog.String("path", path),
		slog.String("utterance_id", wav.ID),
		slog.Int("bytes", len(wav.Data)),
		slog.Duration("duration", duration),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved++
	if s.keepRecent > 0 {
		s.recent = append(s.recent, SavedFile{
			ID:       wav.ID,
			Path:     path,
			Bytes:      len(wav.Data),
			SampleRate: info.Format.SampleRate,
			Samples:    info.NumSamples,
			Duration:   duration,
			SavedAt:    savedAt,
		})
		if over := len(s.recent) - s.keepRecent; over > 0 {
			s.recent = append(s.recent[:0], s.recent[over:]...)
		}
	}

	return nil
}

// create writes data under a millisecond timestamp name, adding a suffix if
// another utterance already took that millisecond
func (s *FileSink) create(at time.Time, data []byte) (string, error) {
	base := fmt.Sprintf("audio_%d", at.UnixMilli())
	for i := 0; ; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.wav", base, i)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", path, err)
		}
		return path, nil
	}
}

// Recent returns the most recently saved files, oldest first
func (s *FileSink) Recent() []SavedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SavedFile, len(s.recent))
	copy(out, s.recent)
	return out
}

// Saved returns the number of files written
func (s *FileSink) Saved() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved
}

// Dir returns the output directory
func (s *FileSink) Dir() string {
	return s.dir
}
