package audio

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is an ordered run of speech blocks handed to the encoder as one
// unit. It is immutable once returned by a Segmenter.
type Utterance struct {
	ID        string        `json:"id"`
	StartTime time.Time     `json:"start_time"` // first speech block
	EndTime   time.Time     `json:"end_time"`   // emission
	Blocks    []SampleBlock `json:"-"`
	Samples   int           `json:"samples"`
}

// Duration returns the play time of the utterance payload
func (u *Utterance) Duration(format Format) time.Duration {
	return format.Duration(u.Samples)
}

// Buffer accumulates speech blocks for the utterance in progress. It is owned
// by a single goroutine and carries no lock.
type Buffer struct {
	blocks    []SampleBlock
	samples   int
	startTime time.Time
}

// NewBuffer creates an empty utterance buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append copies block onto the end of the buffer. The caller may reuse block
// afterwards.
func (b *Buffer) Append(block SampleBlock, now time.Time) {
	if len(block) == 0 {
		return
	}
	if len(b.blocks) == 0 {
		b.startTime = now
	}
	cp := make(SampleBlock, len(block))
	copy(cp, block)
	b.blocks = append(b.blocks, cp)
	b.samples += len(cp)
}

// Empty reports whether no speech has been accumulated
func (b *Buffer) Empty() bool {
	return len(b.blocks) == 0
}

// Len returns the number of accumulated blocks
func (b *Buffer) Len() int {
	return len(b.blocks)
}

// Samples returns the number of accumulated samples
func (b *Buffer) Samples() int {
	return b.samples
}

// Take transfers the accumulated blocks into a new Utterance and leaves the
// buffer empty. It returns nil if nothing was accumulated.
func (b *Buffer) Take(now time.Time) *Utterance {
	if b.Empty() {
		return nil
	}
	u := &Utterance{
		ID:        uuid.NewString(),
		StartTime: b.startTime,
		EndTime:   now,
		Blocks:    b.blocks,
		Samples:   b.samples,
	}
	b.Reset()
	return u
}

// Reset discards accumulated blocks without emitting them
func (b *Buffer) Reset() {
	b.blocks = nil
	b.samples = 0
	b.startTime = time.Time{}
}
