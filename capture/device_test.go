package capture

import (
	"context"
	"errors"
	"testing"
)

type fakeEnumerator struct {
	devices []DeviceDescriptor
	err     error
}

func (f *fakeEnumerator) ListInputDevices(ctx context.Context, mode Mode) ([]DeviceDescriptor, error) {
	return f.devices, f.err
}

func TestFilterAndSort(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   []string
	}{
		{
			name:   "virtual device excluded, default sorts first",
			labels: []string{"Default – Built-in Mic", "Virtual Cable", "USB Headset"},
			want:   []string{"Default – Built-in Mic", "USB Headset"},
		},
		{
			name:   "built-in sorts after default, before others",
			labels: []string{"USB Headset", "Built-in Microphone", "Default Device"},
			want:   []string{"Default Device", "Built-in Microphone", "USB Headset"},
		},
		{
			name:   "loopback artifacts excluded case-insensitively",
			labels: []string{"Stereo Mix (Realtek)", "Microsoft Teams Audio", "VIRTUAL Desktop Audio", "Blue Yeti"},
			want:   []string{"Blue Yeti"},
		},
		{
			name:   "enumeration order preserved for unranked devices",
			labels: []string{"Mic A", "Mic B", "Mic C"},
			want:   []string{"Mic A", "Mic B", "Mic C"},
		},
		{
			name:   "empty input",
			labels: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var devices []DeviceDescriptor
			for i, label := range tt.labels {
				devices = append(devices, DeviceDescriptor{ID: string(rune('0' + i)), Label: label})
			}

			got := FilterAndSort(devices)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d devices, want %d: %v", len(got), len(tt.want), got)
			}
			for i, want := range tt.want {
				if got[i].Label != want {
					t.Errorf("device %d: got %q, want %q", i, got[i].Label, want)
				}
			}
		})
	}
}

func TestListInputDevicesEnumerationFailure(t *testing.T) {
	e := &fakeEnumerator{err: errors.New("permission not granted")}

	got := ListInputDevices(context.Background(), e, ModeAudio)
	if len(got) != 0 {
		t.Fatalf("expected empty device list on enumeration failure, got %v", got)
	}
}

func TestListInputDevicesFiltersResult(t *testing.T) {
	e := &fakeEnumerator{devices: []DeviceDescriptor{
		{ID: "0", Label: "Virtual Cable"},
		{ID: "1", Label: "USB Headset"},
	}}

	got := ListInputDevices(context.Background(), e, ModeAudio)
	if len(got) != 1 || got[0].Label != "USB Headset" {
		t.Fatalf("unexpected device list: %v", got)
	}
}
