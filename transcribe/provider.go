package transcribe

import "context"

// Provider is the external speech-to-text capability. It receives a
// time-limited, publicly fetchable URL and returns transcript text.
type Provider interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}
