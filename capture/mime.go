package capture

import "fmt"

// EncodingProber reports whether the capture subsystem can encode a given
// container/codec combination.
type EncodingProber interface {
	Supports(mimeType string) bool
}

// Preference order probed at recording start. The first supported entry wins.
var (
	audioMIMEPreference = []string{
		"audio/mp4",
		"audio/webm;codecs=opus",
		"audio/webm",
	}
	videoMIMEPreference = []string{
		"video/mp4",
		"video/webm",
	}
)

// UnsupportedEncodingError means no acceptable MIME type was found among the
// preference list. Fatal to starting a recording: failing fast beats silently
// recording in an unplayable format.
type UnsupportedEncodingError struct {
	Mode Mode
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("no supported recording format for %s capture", e.Mode)
}

// SelectMIMEType returns the first entry of the mode's preference list that
// the prober reports as supported.
func SelectMIMEType(mode Mode, p EncodingProber) (string, error) {
	preference := audioMIMEPreference
	if mode == ModeVideo {
		preference = videoMIMEPreference
	}
	for _, mimeType := range preference {
		if p.Supports(mimeType) {
			return mimeType, nil
		}
	}
	return "", &UnsupportedEncodingError{Mode: mode}
}

// ExtensionForMIME maps a capture MIME type to the file extension used in
// storage keys. Extension and declared MIME type must match the actual
// captured encoding.
func ExtensionForMIME(mimeType string) string {
	switch mimeType {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm;codecs=opus", "audio/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}
