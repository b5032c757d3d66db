package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type stubSigner struct {
	url   string
	err   error
	calls int
}

func (s *stubSigner) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type stubProvider struct {
	text  string
	err   error
	calls int
	urls  []string
}

func (p *stubProvider) Transcribe(ctx context.Context, audioURL string) (string, error) {
	p.calls++
	p.urls = append(p.urls, audioURL)
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&strings.Builder{})
	return l
}

func TestTranscribeSuccess(t *testing.T) {
	signer := &stubSigner{url: "https://store.example/media?sig=abc"}
	provider := &stubProvider{text: "once upon a time"}
	o := NewOrchestrator(signer, provider, testLogger())

	text, err := o.Transcribe(context.Background(), "story/take.webm")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "once upon a time" {
		t.Errorf("text = %q", text)
	}
	if len(provider.urls) != 1 || provider.urls[0] != signer.url {
		t.Errorf("provider received %v, want the signed URL", provider.urls)
	}
}

func TestSigningFailureSkipsProvider(t *testing.T) {
	signer := &stubSigner{err: errors.New("bucket unreachable")}
	provider := &stubProvider{text: "should never run"}
	o := NewOrchestrator(signer, provider, testLogger())

	_, err := o.Transcribe(context.Background(), "story/take.webm")
	var sigErr *SigningError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SigningError, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls)
	}
}

func TestProviderErrorCarriedVerbatim(t *testing.T) {
	providerErr := errors.New("429 rate limit exceeded, retry after 20s")
	signer := &stubSigner{url: "https://store.example/media"}
	provider := &stubProvider{err: providerErr}
	o := NewOrchestrator(signer, provider, testLogger())

	_, err := o.Transcribe(context.Background(), "story/take.webm")
	var provErrWrap *ProviderError
	if !errors.As(err, &provErrWrap) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !errors.Is(err, providerErr) {
		t.Error("underlying provider error must be preserved")
	}
	if !strings.Contains(err.Error(), providerErr.Error()) {
		t.Errorf("message %q must carry the provider text verbatim", err.Error())
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no automatic retry)", provider.calls)
	}
}

func TestEmptyTranscriptIsFailure(t *testing.T) {
	signer := &stubSigner{url: "https://store.example/media"}
	o := NewOrchestrator(signer, &stubProvider{text: "   \n"}, testLogger())

	_, err := o.Transcribe(context.Background(), "story/take.webm")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError for empty text, got %v", err)
	}
}
