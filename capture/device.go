package capture

import (
	"context"
	"sort"
	"strings"
)

// Mode selects which kind of input the session captures.
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeVideo Mode = "video"
)

// DeviceDescriptor identifies one input device.
type DeviceDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Enumerator lists the input devices available for a capture mode.
type Enumerator interface {
	ListInputDevices(ctx context.Context, mode Mode) ([]DeviceDescriptor, error)
}

// Labels matching these substrings are audio-routing artifacts, not real
// microphones: they produce silent or looped captures.
var virtualLabelPatterns = []string{"virtual", "teams", "stereo mix"}

// ListInputDevices enumerates, filters and orders input devices. Enumeration
// failure (typically permission not yet granted) yields an empty list; the
// caller then falls back to the platform's implicit default device instead of
// failing the capture.
func ListInputDevices(ctx context.Context, e Enumerator, mode Mode) []DeviceDescriptor {
	devices, err := e.ListInputDevices(ctx, mode)
	if err != nil {
		return nil
	}
	return FilterAndSort(devices)
}

// FilterAndSort drops known virtual/loopback devices and biases the ordering
// toward devices most likely to work without configuration: "default" labels
// first, then "built-in", then the rest in enumeration order.
func FilterAndSort(devices []DeviceDescriptor) []DeviceDescriptor {
	filtered := make([]DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		if isVirtualDevice(d.Label) {
			continue
		}
		filtered = append(filtered, d)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return labelRank(filtered[i].Label) < labelRank(filtered[j].Label)
	})
	return filtered
}

func isVirtualDevice(label string) bool {
	lower := strings.ToLower(label)
	for _, pattern := range virtualLabelPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func labelRank(label string) int {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "default"):
		return 0
	case strings.Contains(lower, "built-in"):
		return 1
	default:
		return 2
	}
}
