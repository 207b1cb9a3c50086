package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/utterance-capture/internal/audio"
	"github.com/skypro1111/utterance-capture/internal/metrics"
	"github.com/skypro1111/utterance-capture/internal/sink"
	"github.com/skypro1111/utterance-capture/internal/vad"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is recording
	ErrAlreadyRunning = errors.New("recording already running")

	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("controller closed")

	// ErrNotRunning is returned by operations that need a recording session
	ErrNotRunning = errors.New("recording not running")
)

// Params fixes the format and thresholds of one recording session
type Params struct {
	Format             audio.Format  `json:"format"`
	AmplitudeThreshold int32         `json:"amplitude_threshold"`
	SilenceThreshold   time.Duration `json:"silence_threshold"`
}

// DefaultParams returns 16 kHz mono 16-bit with the default thresholds
func DefaultParams() Params {
	return Params{
		Format:             audio.DefaultFormat(),
		AmplitudeThreshold: vad.DefaultAmplitudeThreshold,
		SilenceThreshold:   audio.DefaultSilenceThreshold,
	}
}

// Validate checks the format and thresholds
func (p Params) Validate() error {
	if err := p.Format.Validate(); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	return p.segmenting().Validate()
}

func (p Params) segmenting() audio.SegmentingConfig {
	return audio.SegmentingConfig{
		AmplitudeThreshold: p.AmplitudeThreshold,
		SilenceThreshold:   p.SilenceThreshold,
		SampleRate:         p.Format.SampleRate,
	}
}

// Config contains controller configuration
type Config struct {
	QueueSize int
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now as the segmentation time source
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Controller owns the recording state. At most one session runs at a time;
// its worker goroutine reads, classifies and segments blocks, encodes each
// finished utterance and queues it for a single dispatcher goroutine that
// calls the sink.
type Controller struct {
	opener  Opener
	sink    sink.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	mu      sync.Mutex
	current *session
	closed  bool

	queue          chan sink.WavFile
	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	dispatcherDone chan struct{}

	// Delivery statistics, written by the dispatcher
	delivered atomic.Uint64
	failed    atomic.Uint64

	statusMu sync.RWMutex
	status   Status
}

// session is one Start..Stop run. Everything but stop and done is owned by
// the worker goroutine.
type session struct {
	id         string
	params     Params
	startedAt  time.Time
	source     Source
	segmenter  *audio.Segmenter
	classifier *vad.Classifier

	stop atomic.Bool
	done chan struct{}

	blocksRead  uint64
	readErrors  uint64
	encodeFails uint64
	emitted     uint64
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (s *session) active() bool {
	return !s.stop.Load() && !isDone(s.done)
}

// Status is a point-in-time view of the controller
type Status struct {
	Running       bool                 `json:"running"`
	SessionID     string               `json:"session_id,omitempty"`
	StartedAt     time.Time            `json:"started_at,omitempty"`
	StoppedAt     time.Time            `json:"stopped_at,omitempty"`
	StopReason    string               `json:"stop_reason,omitempty"`
	Params        *Params              `json:"params,omitempty"`
	BlocksRead    uint64               `json:"blocks_read"`
	Datagrams     uint64               `json:"datagrams,omitempty"`
	ReadErrors    uint64               `json:"read_errors"`
	EncodeErrors  uint64               `json:"encode_errors"`
	Utterances    uint64               `json:"utterances"`
	Segmenter     audio.SegmenterStats `json:"segmenter"`
	Classifier    vad.ClassifierStats  `json:"classifier"`
	QueueSize     int                  `json:"queue_size"`
	QueueCapacity int                  `json:"queue_capacity"`
	Delivered     uint64               `json:"delivered"`
	DeliveryFails uint64               `json:"delivery_failures"`
}

// NewController creates a controller and starts its dispatcher. Close stops
// the dispatcher after the last session has drained.
func NewController(opener Opener, s sink.Sink, cfg Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if s == nil {
		s = sink.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		opener:         opener,
		sink:           s,
		logger:         logger,
		metrics:        m,
		clock:          time.Now,
		queue:          make(chan sink.WavFile, cfg.QueueSize),
		dispatchCtx:    ctx,
		dispatchCancel: cancel,
		dispatcherDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()

	return c
}

// Start opens the source and launches a recording session. It returns
// ErrAlreadyRunning if a session is recording. A session that is still
// flushing after Stop is waited for before the new one opens its source.
func (c *Controller) Start(p Params) error {
	return c.StartContext(context.Background(), p)
}

// StartContext is Start with a bound on the wait for a flushing session.
// The wait does not hold the controller lock, so Stop and Status stay
// responsive while a slow sink drains.
func (c *Controller) StartContext(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}

		prev := c.current
		if prev == nil || isDone(prev.done) {
			break
		}
		if prev.active() {
			c.mu.Unlock()
			return ErrAlreadyRunning
		}

		c.mu.Unlock()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return fmt.Errorf("previous session still stopping: %w", ctx.Err())
		}
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	classifier, err := vad.NewClassifier(p.AmplitudeThreshold)
	if err != nil {
		return err
	}

	segmenter, err := audio.NewSegmenter(p.segmenting(), audio.WithClock(c.clock), audio.WithClassifier(classifier))
	if err != nil {
		return err
	}

	source, err := c.opener.Open(p.Format)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}

	sess := &session{
		id:         uuid.NewString(),
		params:     p,
		startedAt:  time.Now(),
		source:     source,
		segmenter:  segmenter,
		classifier: classifier,
		done:       make(chan struct{}),
	}
	c.current = sess

	c.metrics.RecordSessionStarted()
	c.metrics.SetRecording(true)
	c.publish(sess, "")

	c.logger.Info("Recording started",
		slog.String("session_id", sess.id),
		slog.Int("sample_rate", p.Format.SampleRate),
		slog.Int("amplitude_threshold", int(p.AmplitudeThreshold)),
		slog.Duration("silence_threshold", p.SilenceThreshold),
	)

	go c.run(sess)

	return nil
}

// Stop asks the running session to finish. The worker observes the request
// before its next read, emits any pending speech and closes the source. Stop
// is idempotent and does not wait; use Wait for that.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || !c.current.active() {
		return
	}
	c.current.stop.Store(true)

	c.logger.Info("Recording stop requested", slog.String("session_id", c.current.id))
}

// SetAmplitudeThreshold changes the running session's amplitude threshold
// from the next block on. Status reports it in the classifier statistics.
func (c *Controller) SetAmplitudeThreshold(threshold int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || !c.current.active() {
		return ErrNotRunning
	}

	previous := c.current.classifier.Threshold()
	if err := c.current.classifier.UpdateThreshold(threshold); err != nil {
		return err
	}

	c.logger.Info("Amplitude threshold updated",
		slog.String("session_id", c.current.id),
		slog.Int("previous", int(previous)),
		slog.Int("threshold", int(threshold)),
	)
	return nil
}

// Wait blocks until the current session, if any, has exited
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return nil
	}

	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a session is recording
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.active()
}

// Status returns the latest published status
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	status := c.status
	c.statusMu.RUnlock()

	status.Running = c.Running()
	status.QueueSize = len(c.queue)
	status.QueueCapacity = cap(c.queue)
	status.Delivered = c.delivered.Load()
	status.DeliveryFails = c.failed.Load()
	return status
}

// Close stops any session, waits for it to flush, then drains the handoff
// queue and stops the dispatcher. If ctx expires first the in-flight sink
// call is cancelled and the remaining shutdown continues in the background:
// the queue is closed once the worker exits, and the dispatcher then fails
// the leftovers fast against the cancelled context.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.current
	if sess != nil {
		sess.stop.Store(true)
	}
	c.mu.Unlock()

	if sess != nil {
		select {
		case <-sess.done:
		case <-ctx.Done():
			c.dispatchCancel()
			go func() {
				<-sess.done
				close(c.queue)
			}()
			return fmt.Errorf("capture worker did not stop: %w", ctx.Err())
		}
	}

	close(c.queue)

	select {
	case <-c.dispatcherDone:
		c.dispatchCancel()
		return nil
	case <-ctx.Done():
		c.dispatchCancel()
		<-c.dispatcherDone
		return fmt.Errorf("dispatcher did not drain: %w", ctx.Err())
	}
}

// run is the session worker loop
func (c *Controller) run(sess *session) {
	defer close(sess.done)

	logger := c.logger.With(slog.String("session_id", sess.id))
	reason := "stopped"

	for !sess.stop.Load() {
		block, err := sess.source.Read()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if IsTransient(err) {
				sess.readErrors++
				c.metrics.RecordReadError("transient")
				logger.Warn("Source read failed, skipping", slog.String("error", err.Error()))
				continue
			}

			sess.readErrors++
			c.metrics.RecordReadError("terminal")
			reason = "source ended: " + err.Error()
			logger.Info("Source ended, finishing session", slog.String("error", err.Error()))
			break
		}

		c.process(sess, block, logger)
	}

	if sess.segmenter.HasPending() {
		u := sess.segmenter.Flush()
		logger.Debug("Flushing pending speech on stop", slog.Int("samples", u.Samples))
		c.emit(sess, u, logger)
	}

	if err := sess.source.Close(); err != nil {
		logger.Warn("Error closing source", slog.String("error", err.Error()))
	}

	c.metrics.SetRecording(false)
	c.publish(sess, reason)

	logger.Info("Recording stopped",
		slog.String("reason", reason),
		slog.Duration("duration", time.Since(sess.startedAt)),
		slog.Uint64("blocks_read", sess.blocksRead),
		slog.Uint64("utterances", sess.emitted),
		slog.Uint64("read_errors", sess.readErrors),
	)
}

func (c *Controller) process(sess *session, block audio.SampleBlock, logger *slog.Logger) {
	u, err := sess.segmenter.Process(block)
	if err != nil {
		sess.readErrors++
		c.metrics.RecordRejectedBlock()
		logger.Warn("Source returned an unusable block, skipping", slog.String("error", err.Error()))
		return
	}

	sess.blocksRead++
	c.metrics.RecordBlockRead(len(block))
	c.metrics.RecordClassification(sess.segmenter.LastActivity() == vad.Speech)

	if u != nil {
		c.emit(sess, u, logger)
	}

	c.publish(sess, "")
}

// emit encodes u and hands it to the dispatcher. The send only blocks when
// the queue is full.
func (c *Controller) emit(sess *session, u *audio.Utterance, logger *slog.Logger) {
	format := sess.params.Format

	data, err := audio.EncodeWAV(u.Blocks, format)
	if err != nil {
		sess.encodeFails++
		c.metrics.RecordEncodeError()
		logger.Error("Failed to encode utterance, dropping it",
			slog.String("utterance_id", u.ID),
			slog.Int("samples", u.Samples),
			slog.String("error", err.Error()),
		)
		return
	}

	wav := sink.WavFile{
		ID:        u.ID,
		Data:      data,
		Format:    format,
		StartTime: u.StartTime,
		EndTime:   u.EndTime,
		Duration:  u.Duration(format),
		Samples:   u.Samples,
	}

	sess.emitted++
	c.metrics.RecordUtterance(wav.Duration.Seconds(), len(data))

	logger.Info("Utterance emitted",
		slog.String("utterance_id", wav.ID),
		slog.Duration("duration", wav.Duration),
		slog.Int("bytes", len(data)),
	)

	select {
	case c.queue <- wav:
	default:
		c.metrics.RecordHandoffStall()
		logger.Warn("Handoff queue full, waiting for sink",
			slog.Int("queue_capacity", cap(c.queue)),
		)
		c.queue <- wav
	}
	c.metrics.SetQueueSize(len(c.queue))
}

// dispatch delivers queued utterances to the sink until the queue is closed
func (c *Controller) dispatch() {
	defer close(c.dispatcherDone)

	for wav := range c.queue {
		c.metrics.SetQueueSize(len(c.queue))

		if err := c.sink.OnUtterance(c.dispatchCtx, wav); err != nil {
			c.failed.Add(1)
			c.logger.Error("Failed to deliver utterance",
				slog.String("utterance_id", wav.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.delivered.Add(1)
	}

	c.logger.Debug("Dispatcher stopped",
		slog.Uint64("delivered", c.delivered.Load()),
		slog.Uint64("failed", c.failed.Load()),
	)
}

// datagramCounter is implemented by packet sources such as UDPSource
type datagramCounter interface {
	Datagrams() uint64
}

// publish snapshots worker-owned session state for Status
func (c *Controller) publish(sess *session, stopReason string) {
	params := sess.params
	status := Status{
		SessionID:    sess.id,
		StartedAt:    sess.startedAt,
		Params:       &params,
		BlocksRead:   sess.blocksRead,
		ReadErrors:   sess.readErrors,
		EncodeErrors: sess.encodeFails,
		Utterances:   sess.emitted,
		Segmenter:    sess.segmenter.Stats(),
		Classifier:   sess.classifier.GetStats(),
	}
	if dc, ok := sess.source.(datagramCounter); ok {
		status.Datagrams = dc.Datagrams()
	}
	if stopReason != "" {
		status.StopReason = stopReason
		status.StoppedAt = time.Now()
	}

	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()
}
