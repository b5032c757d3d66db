package capture

import (
	"errors"
	"testing"
)

type setProber map[string]bool

func (p setProber) Supports(mimeType string) bool {
	return p[mimeType]
}

func TestSelectMIMETypeOrderPreservingFirstMatch(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		supported []string
		want      string
	}{
		{
			name:      "first preference wins when all supported",
			mode:      ModeAudio,
			supported: []string{"audio/mp4", "audio/webm;codecs=opus", "audio/webm"},
			want:      "audio/mp4",
		},
		{
			name:      "later entry never chosen over an earlier supported one",
			mode:      ModeAudio,
			supported: []string{"audio/webm", "audio/webm;codecs=opus"},
			want:      "audio/webm;codecs=opus",
		},
		{
			name:      "last resort",
			mode:      ModeAudio,
			supported: []string{"audio/webm"},
			want:      "audio/webm",
		},
		{
			name:      "video preference",
			mode:      ModeVideo,
			supported: []string{"video/webm", "video/mp4"},
			want:      "video/mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setProber{}
			for _, m := range tt.supported {
				p[m] = true
			}
			got, err := SelectMIMEType(tt.mode, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectMIMETypeNoneSupported(t *testing.T) {
	_, err := SelectMIMEType(ModeAudio, setProber{})
	var encErr *UnsupportedEncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected UnsupportedEncodingError, got %v", err)
	}
	if encErr.Mode != ModeAudio {
		t.Errorf("error mode = %q, want audio", encErr.Mode)
	}
}

func TestExtensionForMIMEMatchesEncoding(t *testing.T) {
	if got := ExtensionForMIME("audio/mp4"); got != ".m4a" {
		t.Errorf("audio/mp4: got %q", got)
	}
	if got := ExtensionForMIME("audio/webm;codecs=opus"); got != ".webm" {
		t.Errorf("opus: got %q", got)
	}
	if got := ExtensionForMIME("application/unknown"); got != ".bin" {
		t.Errorf("unknown: got %q", got)
	}
}
