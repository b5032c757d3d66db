package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// State is the recording session lifecycle state. Transitions are explicit;
// an illegal transition returns ErrInvalidTransition instead of silently
// doing nothing.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateReviewing State = "reviewing"
	StateSaving    State = "saving"
	StateFailed    State = "failed"
)

var ErrInvalidTransition = errors.New("invalid recording session transition")

// PermissionError means the input device could not be acquired: access
// denied or device busy. Fatal to this attempt but recoverable; the user may
// retry after adjusting permissions.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "input device unavailable: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// DeviceStream is an open, exclusive handle on an input device. Closing it
// releases the device; a stream must never outlive its session.
type DeviceStream interface {
	Chunks() <-chan []byte
	Close() error
}

// DeviceSource acquires input devices. The platform enforces exclusive
// access; sessions respect it by always releasing before acquiring elsewhere.
type DeviceSource interface {
	Open(ctx context.Context, mode Mode, deviceID string) (DeviceStream, error)
}

// Blob is the immutable output of a finished recording. DurationSeconds is
// the wall-clock elapsed counter; the encoded duration inside Bytes is
// determined by the encoder and may diverge slightly.
type Blob struct {
	Bytes           []byte
	MIMEType        string
	DurationSeconds int
	Peaks           []float64
}

type recordingResult struct {
	chunks [][]byte
	peaks  []float64
}

// Session owns the record/pause/stop/review lifecycle for a single take.
// The accumulating chunk buffer lives in the session goroutine; the session
// mutex only guards state transitions, so finalization can wait for the
// goroutine without deadlocking.
type Session struct {
	source   DeviceSource
	prober   EncodingProber
	mode     Mode
	deviceID string
	tick     time.Duration

	elapsed atomic.Int64

	mu          sync.Mutex
	state       State
	mimeType    string
	blob        *Blob
	failure     error
	stream      DeviceStream
	stopCh      chan struct{}
	resultCh    chan recordingResult
	releaseOnce *sync.Once
}

type SessionOption func(*Session)

// WithTickInterval overrides the elapsed-counter tick, one second by default.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		s.tick = d
	}
}

func NewSession(source DeviceSource, prober EncodingProber, mode Mode, deviceID string, opts ...SessionOption) *Session {
	s := &Session{
		source:   source,
		prober:   prober,
		mode:     mode,
		deviceID: deviceID,
		tick:     time.Second,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() Mode {
	return s.mode
}

// ElapsedSeconds is the wall-clock counter incremented once per tick while
// recording.
func (s *Session) ElapsedSeconds() int {
	return int(s.elapsed.Load())
}

// Blob returns the finished blob while reviewing, nil otherwise.
func (s *Session) Blob() *Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob
}

// Start probes the recording format, acquires the input device and begins
// accumulating chunks. On device acquisition failure the session stays Idle
// and reports a PermissionError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}

	mimeType, err := SelectMIMEType(s.mode, s.prober)
	if err != nil {
		return err
	}

	stream, err := s.source.Open(ctx, s.mode, s.deviceID)
	if err != nil {
		return &PermissionError{Err: err}
	}

	s.mimeType = mimeType
	s.stream = stream
	s.blob = nil
	s.failure = nil
	s.elapsed.Store(0)
	s.stopCh = make(chan struct{})
	s.resultCh = make(chan recordingResult, 1)
	s.releaseOnce = &sync.Once{}
	s.state = StateRecording

	go s.run(stream, s.stopCh, s.resultCh)
	return nil
}

func (s *Session) run(stream DeviceStream, stop <-chan struct{}, out chan<- recordingResult) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var chunks [][]byte
	var peaks []float64
	var lastPeak float64
	chunkCh := stream.Chunks()

	for {
		select {
		case <-stop:
			out <- recordingResult{chunks: chunks, peaks: peaks}
			return
		case <-ticker.C:
			s.elapsed.Add(1)
			peaks = append(peaks, lastPeak)
		case b, ok := <-chunkCh:
			if !ok {
				chunkCh = nil
				continue
			}
			buf := make([]byte, len(b))
			copy(buf, b)
			chunks = append(chunks, buf)
			lastPeak = peakAmplitude(b)
		}
	}
}

// Stop finalizes the take: the device is released immediately (exactly once,
// even across repeated Stop calls) and the accumulated chunks are
// concatenated into one blob. Stopping within the same tick as Start yields
// a valid empty blob, not an error.
func (s *Session) Stop() (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReviewing:
		return s.blob, nil
	case StateRecording:
	default:
		return nil, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, s.state)
	}

	close(s.stopCh)
	res := <-s.resultCh
	s.releaseStreamLocked()

	total := 0
	for _, c := range res.chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range res.chunks {
		data = append(data, c...)
	}

	s.blob = &Blob{
		Bytes:           data,
		MIMEType:        s.mimeType,
		DurationSeconds: int(s.elapsed.Load()),
		Peaks:           res.peaks,
	}
	s.state = StateReviewing
	return s.blob, nil
}

// Retake discards the reviewed blob and returns to Idle without producing
// output.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return fmt.Errorf("%w: retake from %s", ErrInvalidTransition, s.state)
	}
	s.blob = nil
	s.elapsed.Store(0)
	s.state = StateIdle
	return nil
}

// BeginSave hands the reviewed blob off to the persistence flow. A Failed
// session may retry the save with the same blob instead of redoing the
// capture.
func (s *Session) BeginSave() (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing && s.state != StateFailed {
		return nil, fmt.Errorf("%w: save from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateSaving
	return s.blob, nil
}

// FinishSave completes the save flow: back to Idle on success, Failed with
// the reason otherwise. A failed session keeps its blob so the save can be
// retried without redoing the capture.
func (s *Session) FinishSave(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSaving {
		return fmt.Errorf("%w: finish save from %s", ErrInvalidTransition, s.state)
	}
	if err != nil {
		s.failure = err
		s.state = StateFailed
		return nil
	}
	s.blob = nil
	s.elapsed.Store(0)
	s.state = StateIdle
	return nil
}

// Failure returns the save error while in the Failed state.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Reset returns a Failed session to Idle for another attempt.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFailed {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, s.state)
	}
	s.blob = nil
	s.failure = nil
	s.elapsed.Store(0)
	s.state = StateIdle
	return nil
}

// Close tears the session down from any state. A session abandoned while
// recording must not leave the device held: the stream is released
// unconditionally and the tick stops. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		close(s.stopCh)
		<-s.resultCh
		s.releaseStreamLocked()
	}
	s.blob = nil
	s.failure = nil
	s.elapsed.Store(0)
	s.state = StateIdle
	return nil
}

func (s *Session) releaseStreamLocked() {
	if s.releaseOnce == nil || s.stream == nil {
		return
	}
	stream := s.stream
	s.releaseOnce.Do(func() {
		_ = stream.Close()
	})
	s.stream = nil
}

// peakAmplitude derives a rough volume level from a raw chunk. Advisory
// only, for UI feedback; it never affects correctness.
func peakAmplitude(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	step := len(b) / 512
	if step < 1 {
		step = 1
	}
	var peak float64
	for i := 0; i < len(b); i += step {
		v := math.Abs(float64(b[i])-128) / 128
		if v > peak {
			peak = v
		}
	}
	return peak
}
