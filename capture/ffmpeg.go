package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

// FFmpegEnumerator lists input devices by parsing ffmpeg's device listing.
type FFmpegEnumerator struct {
	BinaryPath string
}

func NewFFmpegEnumerator(binaryPath string) *FFmpegEnumerator {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpegEnumerator{BinaryPath: binaryPath}
}

// Lines look like: [AVFoundation indev @ 0x...] [0] Built-in Microphone
var deviceLineRe = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)

func (e *FFmpegEnumerator) ListInputDevices(ctx context.Context, mode Mode) ([]DeviceDescriptor, error) {
	cmd := exec.CommandContext(ctx, e.BinaryPath,
		"-f", inputFormat(),
		"-list_devices", "true",
		"-i", "",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg exits non-zero after listing; the listing itself is on stderr.
	_ = cmd.Run()

	section := "audio"
	if mode == ModeVideo {
		section = "video"
	}

	var devices []DeviceDescriptor
	inSection := false
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		if strings.Contains(lower, "devices:") {
			inSection = strings.Contains(lower, section)
			continue
		}
		if !inSection {
			continue
		}
		if m := deviceLineRe.FindStringSubmatch(line); m != nil {
			devices = append(devices, DeviceDescriptor{
				ID:    m[1],
				Label: strings.TrimSpace(m[2]),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing device list: %w", err)
	}
	if len(devices) == 0 && stderr.Len() == 0 {
		return nil, fmt.Errorf("device enumeration produced no output")
	}
	return devices, nil
}

// FFmpegSource acquires an input device by spawning an ffmpeg capture
// process streaming encoded output to a pipe. The running process holds the
// platform device lock; killing it releases the device.
type FFmpegSource struct {
	BinaryPath string
}

func NewFFmpegSource(binaryPath string) *FFmpegSource {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpegSource{BinaryPath: binaryPath}
}

func (s *FFmpegSource) Open(ctx context.Context, mode Mode, deviceID string) (DeviceStream, error) {
	var args []string
	if mode == ModeVideo {
		input := "0:default"
		if deviceID != "" {
			input = deviceID + ":default"
		}
		args = []string{"-f", inputFormat(), "-i", input, "-f", "webm", "pipe:1"}
	} else {
		input := ":default"
		if deviceID != "" {
			input = ":" + deviceID
		}
		args = []string{"-f", inputFormat(), "-i", input, "-ac", "1", "-ar", "16000", "-f", "webm", "pipe:1"}
	}

	cmd := exec.CommandContext(ctx, s.BinaryPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting capture process: %w", err)
	}

	st := &ffmpegStream{
		cmd:    cmd,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go st.pump(stdout)
	return st, nil
}

type ffmpegStream struct {
	cmd       *exec.Cmd
	chunks    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (st *ffmpegStream) pump(r io.Reader) {
	defer close(st.chunks)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case st.chunks <- chunk:
			case <-st.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (st *ffmpegStream) Chunks() <-chan []byte {
	return st.chunks
}

// Close kills the capture process and reaps it. Repeated calls return the
// cached result of the first teardown.
func (st *ffmpegStream) Close() error {
	st.closeOnce.Do(func() {
		close(st.done)
		if st.cmd.Process != nil {
			_ = st.cmd.Process.Kill()
		}
		st.closeErr = st.cmd.Wait()
	})
	return st.closeErr
}

// FFmpegProber reports the container/codec combinations the ffmpeg capture
// path can produce.
type FFmpegProber struct{}

var ffmpegSupported = map[string]bool{
	"audio/webm;codecs=opus": true,
	"audio/webm":             true,
	"video/webm":             true,
}

func (FFmpegProber) Supports(mimeType string) bool {
	return ffmpegSupported[mimeType]
}

func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}
