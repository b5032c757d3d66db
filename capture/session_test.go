package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	ch chan []byte

	mu     sync.Mutex
	closed int
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan []byte)}
}

func (f *fakeStream) Chunks() <-chan []byte {
	return f.ch
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	opens   int
}

func (f *fakeSource) Open(ctx context.Context, mode Mode, deviceID string) (DeviceStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	st := newFakeStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

func allProber() setProber {
	return setProber{
		"audio/mp4":              true,
		"audio/webm;codecs=opus": true,
		"audio/webm":             true,
		"video/mp4":              true,
		"video/webm":             true,
	}
}

func TestZeroDurationStopProducesValidBlob(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	blob, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if blob == nil {
		t.Fatal("expected a blob, got nil")
	}
	if blob.DurationSeconds < 0 {
		t.Errorf("duration = %d, want >= 0", blob.DurationSeconds)
	}
	if blob.Bytes == nil || len(blob.Bytes) != 0 {
		t.Errorf("expected well-formed empty bytes, got %v", blob.Bytes)
	}
	if blob.MIMEType != "audio/mp4" {
		t.Errorf("mime = %q, want first preference audio/mp4", blob.MIMEType)
	}
	if s.State() != StateReviewing {
		t.Errorf("state = %q, want reviewing", s.State())
	}
}

func TestStopReleasesDeviceExactlyOnce(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := s.Stop()
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	second, err := s.Stop()
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if first != second {
		t.Error("repeated stop should return the same blob")
	}
	if got := src.lastStream().closeCount(); got != 1 {
		t.Errorf("stream closed %d times, want exactly 1", got)
	}
}

func TestChunksConcatenateInOrder(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := src.lastStream()
	stream.ch <- []byte("hello ")
	stream.ch <- []byte("world")

	blob, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !bytes.Equal(blob.Bytes, []byte("hello world")) {
		t.Errorf("blob bytes = %q, want %q", blob.Bytes, "hello world")
	}
}

func TestPermissionErrorStaysIdle(t *testing.T) {
	src := &fakeSource{err: errors.New("device busy")}
	s := NewSession(src, allProber(), ModeAudio, "")

	err := s.Start(context.Background())
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if permErr.Err.Error() != "device busy" {
		t.Errorf("underlying message lost: %v", permErr)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q, want idle", s.State())
	}
	// The user may retry after fixing permissions.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	defer s.Close()
}

func TestUnsupportedEncodingFailsFast(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, setProber{}, ModeAudio, "")

	err := s.Start(context.Background())
	var encErr *UnsupportedEncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected UnsupportedEncodingError, got %v", err)
	}
	if src.opens != 0 {
		t.Error("device must not be acquired when no encoding is supported")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q, want idle", s.State())
	}
}

func TestCloseDuringRecordingReleasesDevice(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := src.lastStream().closeCount(); got != 1 {
		t.Errorf("stream closed %d times, want exactly 1", got)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q, want idle", s.State())
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := src.lastStream().closeCount(); got != 1 {
		t.Errorf("stream closed %d times after repeated close, want 1", got)
	}
}

func TestRetakeDiscardsBlob(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Retake(); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q, want idle", s.State())
	}
	if s.Blob() != nil {
		t.Error("blob must be discarded on retake")
	}
	// A fresh take acquires a new stream.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Close()
	if src.opens != 2 {
		t.Errorf("opens = %d, want 2", src.opens)
	}
}

func TestIllegalTransitions(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if _, err := s.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stop while idle: got %v, want ErrInvalidTransition", err)
	}
	if err := s.Retake(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("retake while idle: got %v, want ErrInvalidTransition", err)
	}
	if _, err := s.BeginSave(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("save while idle: got %v, want ErrInvalidTransition", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start while recording: got %v, want ErrInvalidTransition", err)
	}
	s.Close()
}

func TestElapsedCounterTicks(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "", WithTickInterval(5*time.Millisecond))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	blob, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if blob.DurationSeconds < 1 {
		t.Errorf("duration = %d, want at least one tick", blob.DurationSeconds)
	}
	if len(blob.Peaks) < 1 {
		t.Errorf("peaks = %v, want one sample per tick", blob.Peaks)
	}
}

func TestSaveLifecycle(t *testing.T) {
	src := &fakeSource{}
	s := NewSession(src, allProber(), ModeAudio, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	blob, err := s.BeginSave()
	if err != nil {
		t.Fatalf("begin save: %v", err)
	}
	if blob != stopped {
		t.Error("begin save must hand off the reviewed blob")
	}
	if s.State() != StateSaving {
		t.Errorf("state = %q, want saving", s.State())
	}

	saveErr := errors.New("storage unavailable")
	if err := s.FinishSave(saveErr); err != nil {
		t.Fatalf("finish save: %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %q, want failed", s.State())
	}
	if !errors.Is(s.Failure(), saveErr) {
		t.Errorf("failure = %v, want %v", s.Failure(), saveErr)
	}

	// The blob survives a failed save so the user can retry the save step
	// without redoing the capture.
	retry, err := s.BeginSave()
	if err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if retry != stopped {
		t.Error("retry must reuse the same blob")
	}
	if err := s.FinishSave(nil); err != nil {
		t.Fatalf("finish save: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q, want idle", s.State())
	}
	if s.Blob() != nil {
		t.Error("blob must be cleared after a successful save")
	}
}
