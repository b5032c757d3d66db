package transcribe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SigningError means a temporary access URL could not be generated. The
// operation fails closed: the provider is never invoked without a valid
// accessible URL.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "failed to sign media URL: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// ProviderError means the external speech service returned an error or no
// usable text. The underlying message is carried verbatim for diagnostic
// display.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return "transcription provider: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// URLSigner hands out a time-limited signed read URL for a stored media
// object.
type URLSigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// HandoffTTL bounds how long a signed media URL stays fetchable by the
// external provider.
const HandoffTTL = 5 * time.Minute

// Orchestrator runs the sign-then-transcribe pipeline for one persisted
// media reference. It never writes assets itself; attaching the transcript
// to the story is the caller's call-site policy.
type Orchestrator struct {
	signer   URLSigner
	provider Provider
	logger   *logrus.Logger
}

func NewOrchestrator(signer URLSigner, provider Provider, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		signer:   signer,
		provider: provider,
		logger:   logger,
	}
}

// Transcribe obtains a short-lived URL for the media reference, invokes the
// provider and returns the transcript text. No automatic retry is performed.
func (o *Orchestrator) Transcribe(ctx context.Context, storagePath string) (string, error) {
	signedURL, err := o.signer.PresignedURL(ctx, storagePath, HandoffTTL)
	if err != nil {
		return "", &SigningError{Err: err}
	}

	text, err := o.provider.Transcribe(ctx, signedURL)
	if err != nil {
		return "", &ProviderError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Err: errNoUsableText}
	}

	o.logger.WithField("storage_path", storagePath).Info("transcription completed")
	return text, nil
}

var errNoUsableText = errors.New("provider returned no usable text")
