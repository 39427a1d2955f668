package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	rmsLevelKey     = "lavfi.astats.Overall.RMS_level="
	stopTimeout     = 5 * time.Second
	startupGrace    = 300 * time.Millisecond
	stderrTailLines = 20
)

// FFmpegBackend captures from a system input device with the ffmpeg binary.
// Pausing closes the current segment file; resuming opens a new one; stopping
// joins the segments into a single file.
type FFmpegBackend struct {
	FFmpegPath  string
	InputFormat string
	InputDevice string
	TempDir     string
	// LogWriter receives raw ffmpeg output when set
	LogWriter io.Writer
}

// DefaultInput returns the ffmpeg input format and device for a GOOS
func DefaultInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (b *FFmpegBackend) Start(ctx context.Context, cfg EncoderConfig) (Capture, error) {
	binary := b.FFmpegPath
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	dir := b.TempDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "audiorec-capture")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate capture id: %w", err)
	}

	c := &ffmpegCapture{
		backend: b,
		binary:  binary,
		cfg:     cfg,
		dir:     dir,
		id:      id.String(),
	}
	if err := c.startSegment(); err != nil {
		c.removeSegments()
		return nil, err
	}
	return c, nil
}

type ffmpegCapture struct {
	backend *FFmpegBackend
	binary  string
	cfg     EncoderConfig
	dir     string
	id      string

	mutex        sync.Mutex
	segments     []string
	cmd          *exec.Cmd
	done         chan error
	segmentStart time.Time
	elapsed      time.Duration

	// output state written by the pipe readers
	outMutex   sync.Mutex
	level      *float64
	stderrTail []string
}

func (c *ffmpegCapture) Pause(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.endSegment()
}

func (c *ffmpegCapture) Resume(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.cmd != nil {
		return nil
	}
	return c.startSegmentLocked()
}

func (c *ffmpegCapture) Stop(ctx context.Context) (string, int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.endSegment(); err != nil {
		slog.Warn("Capture segment did not end cleanly", "error", err)
	}
	duration := c.elapsed.Milliseconds()

	var segments []string
	for _, seg := range c.segments {
		if info, err := os.Stat(seg); err == nil && info.Size() > 0 {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		c.removeSegments()
		return "", duration, fmt.Errorf("capture produced no audio: %s", strings.Join(c.tail(), " | "))
	}

	output := filepath.Join(c.dir, c.id+c.cfg.Extension)
	if len(segments) == 1 {
		if err := os.Rename(segments[0], output); err != nil {
			return "", duration, fmt.Errorf("failed to finalize capture (segment kept: %s): %w", segments[0], err)
		}
		c.removeSegments()
		return output, duration, nil
	}

	if err := c.concat(ctx, segments, output); err != nil {
		// the segments are the only copy of the audio, leave them in place
		slog.Error("Capture segments kept after failed join", "segments", segments, "error", err)
		return "", duration, fmt.Errorf("%w (segments kept: %s)", err, strings.Join(segments, ", "))
	}
	c.removeSegments()
	return output, duration, nil
}

func (c *ffmpegCapture) Status() CaptureStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elapsed := c.elapsed
	if c.cmd != nil {
		elapsed += time.Since(c.segmentStart)
	}
	st := CaptureStatus{DurationMillis: elapsed.Milliseconds()}

	c.outMutex.Lock()
	defer c.outMutex.Unlock()
	if c.level != nil {
		level := *c.level
		st.LevelDB = &level
	}
	return st
}

func (c *ffmpegCapture) startSegment() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.startSegmentLocked()
}

// startSegmentLocked launches ffmpeg writing the next segment file
func (c *ffmpegCapture) startSegmentLocked() error {
	segment := filepath.Join(c.dir, fmt.Sprintf("%s-%03d%s", c.id, len(c.segments), c.cfg.Extension))
	c.segments = append(c.segments, segment)

	args := []string{
		"-hide_banner", "-nostdin", "-nostats",
		"-loglevel", "info",
		"-f", c.backend.InputFormat,
		"-i", c.backend.InputDevice,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-af", "astats=metadata=1:reset=1,ametadata=mode=print:key=lavfi.astats.Overall.RMS_level",
		"-c:a", ffmpegCodec(c.cfg.Codec),
		"-b:a", strconv.Itoa(c.cfg.BitRate),
		"-y", segment,
	}

	slog.Debug("Starting ffmpeg capture", "command", c.binary+" "+strings.Join(args, " "))

	cmd := exec.Command(c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		c.readOutput(stdout, "stdout")
	}()
	go func() {
		defer readers.Done()
		c.readOutput(stderr, "stderr")
	}()

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- cmd.Wait()
	}()

	// Fail fast when the device cannot be opened
	select {
	case err := <-done:
		return fmt.Errorf("ffmpeg exited during startup: %v: %s", err, strings.Join(c.tail(), " | "))
	case <-time.After(startupGrace):
	}

	c.cmd = cmd
	c.done = done
	c.segmentStart = time.Now()
	return nil
}

// endSegment stops the running ffmpeg process, if any, and accounts its time
func (c *ffmpegCapture) endSegment() error {
	if c.cmd == nil {
		return nil
	}
	c.elapsed += time.Since(c.segmentStart)
	err := stopProcess(c.cmd, c.done)
	c.cmd = nil
	c.done = nil
	return err
}

func (c *ffmpegCapture) concat(ctx context.Context, segments []string, output string) error {
	list := filepath.Join(c.dir, c.id+"-segments.txt")
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(seg, "'", `'\''`))
	}
	if err := os.WriteFile(list, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write segment list: %w", err)
	}
	defer os.Remove(list)

	cmd := exec.CommandContext(ctx, c.binary,
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", list,
		"-c", "copy", "-y", output)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to join %d capture segments: %w: %s", len(segments), err, strings.TrimSpace(string(out)))
	}
	slog.Debug("Capture segments joined", "segments", len(segments), "output", output)
	return nil
}

func (c *ffmpegCapture) removeSegments() {
	for _, seg := range c.segments {
		if err := os.Remove(seg); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("Failed to remove capture segment", "path", seg, "error", err)
		}
	}
	c.segments = nil
}

// readOutput scans ffmpeg output for level metadata and keeps a short tail
// for error reporting
func (c *ffmpegCapture) readOutput(pipe io.ReadCloser, label string) {
	defer pipe.Close()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if w := c.backend.LogWriter; w != nil {
			fmt.Fprintln(w, line)
		}

		if idx := strings.Index(line, rmsLevelKey); idx >= 0 {
			level := parseLevel(line[idx+len(rmsLevelKey):])
			c.outMutex.Lock()
			c.level = &level
			c.outMutex.Unlock()
			continue
		}

		slog.Debug("FFmpeg output", "stream", label, "line", line)
		c.outMutex.Lock()
		c.stderrTail = append(c.stderrTail, line)
		if len(c.stderrTail) > stderrTailLines {
			c.stderrTail = c.stderrTail[1:]
		}
		c.outMutex.Unlock()
	}
}

func (c *ffmpegCapture) tail() []string {
	c.outMutex.Lock()
	defer c.outMutex.Unlock()
	return append([]string(nil), c.stderrTail...)
}

// parseLevel reads an astats RMS level; -inf and garbage become silence
func parseLevel(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < silenceDB {
		return silenceDB
	}
	return v
}

func ffmpegCodec(codec string) string {
	switch codec {
	case "opus":
		return "libopus"
	default:
		return codec
	}
}

// stopProcess sends an interrupt so ffmpeg can finalize the container,
// then kills it after a timeout
func stopProcess(cmd *exec.Cmd, done <-chan error) error {
	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to ffmpeg process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to ffmpeg, killing", "error", err)
			cmd.Process.Kill()
		}
	}

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// 255 is ffmpeg's exit code after a handled interrupt
			if exitErr.ExitCode() == 255 {
				return nil
			}
			if state := exitErr.ProcessState.String(); state == "signal: interrupt" || state == "signal: killed" {
				return nil
			}
		}
		return fmt.Errorf("ffmpeg process failed: %w", err)

	case <-time.After(stopTimeout):
		slog.Warn("ffmpeg did not exit within timeout, force killing")
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return nil
	}
}
