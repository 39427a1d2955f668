package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

type fakePermissions struct {
	granted bool
	err     error
}

func (f fakePermissions) MicrophoneGranted() (bool, error) { return f.granted, f.err }

type fakeBackend struct {
	dir     string
	started []EncoderConfig
	capture *fakeCapture
	err     error
}

func (b *fakeBackend) Start(ctx context.Context, cfg EncoderConfig) (Capture, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.started = append(b.started, cfg)
	b.capture = &fakeCapture{location: filepath.Join(b.dir, "capture"+cfg.Extension), duration: 1200}
	return b.capture, nil
}

type fakeCapture struct {
	location string
	duration int64
	level    *float64
	paused   bool
	stopped  bool
	stopErr  error
}

func (c *fakeCapture) Pause(context.Context) error  { c.paused = true; return nil }
func (c *fakeCapture) Resume(context.Context) error { c.paused = false; return nil }

func (c *fakeCapture) Stop(context.Context) (string, int64, error) {
	c.stopped = true
	if c.stopErr != nil {
		return "", 0, c.stopErr
	}
	if err := os.WriteFile(c.location, []byte("audio"), 0644); err != nil {
		return "", 0, err
	}
	return c.location, c.duration, nil
}

func (c *fakeCapture) Status() CaptureStatus {
	return CaptureStatus{DurationMillis: c.duration, LevelDB: c.level}
}

func newTestSession(t *testing.T, granted bool) (*Session, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{dir: t.TempDir()}
	return NewSession(backend, fakePermissions{granted: granted}, PlatformAndroid), backend
}

func TestPauseBeforeStart(t *testing.T) {
	s, _ := newTestSession(t, true)
	if err := s.Pause(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got: %v", err)
	}
	if err := s.Resume(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for resume, got: %v", err)
	}
}

func TestStartWithoutPermission(t *testing.T) {
	s, backend := newTestSession(t, false)
	if err := s.Start(context.Background(), recording.QualityHigh); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got: %v", err)
	}
	if len(backend.started) != 0 {
		t.Error("Backend must not start without permission")
	}
	if s.State() != StatusIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestStartTwice(t *testing.T) {
	s, _ := newTestSession(t, true)
	ctx := context.Background()
	if err := s.Start(ctx, recording.QualityLow); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(ctx, recording.QualityLow); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second start, got: %v", err)
	}
}

func TestStartUsesPreset(t *testing.T) {
	s, backend := newTestSession(t, true)
	if err := s.Start(context.Background(), recording.QualityMedium); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	want, _ := Presets(recording.QualityMedium, PlatformAndroid)
	if backend.started[0] != want {
		t.Errorf("Expected preset %+v, got %+v", want, backend.started[0])
	}
}

func TestStopWithoutSession(t *testing.T) {
	s, _ := newTestSession(t, true)
	if _, err := s.Stop(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got: %v", err)
	}
}

func TestFullCycle(t *testing.T) {
	s, backend := newTestSession(t, true)
	ctx := context.Background()

	if err := s.Start(ctx, recording.QualityHigh); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if st := s.Status(); !st.IsPaused || st.IsRecording {
		t.Errorf("Expected paused status, got %+v", st)
	}
	if err := s.Pause(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState pausing twice, got: %v", err)
	}
	if err := s.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	result, err := s.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.Location == "" || result.DurationMillis < 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.Quality != recording.QualityHigh || result.Encoder.Extension != ".m4a" {
		t.Errorf("Unexpected quality/encoder: %+v", result)
	}
	if !backend.capture.stopped {
		t.Error("Expected backend capture to be stopped")
	}
	if s.State() != StatusIdle {
		t.Errorf("Expected idle after stop, got %s", s.State())
	}
}

func TestStopResetsOnBackendError(t *testing.T) {
	s, backend := newTestSession(t, true)
	ctx := context.Background()
	s.Start(ctx, recording.QualityHigh)
	backend.capture.stopErr = errors.New("device gone")

	if _, err := s.Stop(ctx); err == nil {
		t.Fatal("Expected stop error")
	}
	if s.State() != StatusIdle {
		t.Errorf("Expected idle after failed stop, got %s", s.State())
	}
}

func TestStopClampsNegativeDuration(t *testing.T) {
	s, backend := newTestSession(t, true)
	ctx := context.Background()
	s.Start(ctx, recording.QualityLow)
	backend.capture.duration = -20

	result, err := s.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.DurationMillis != 0 {
		t.Errorf("Expected duration clamped to 0, got %d", result.DurationMillis)
	}
}

func TestCancelRemovesFile(t *testing.T) {
	s, backend := newTestSession(t, true)
	ctx := context.Background()
	s.Start(ctx, recording.QualityLow)

	s.Cancel(ctx)

	if _, err := os.Stat(backend.capture.location); !os.IsNotExist(err) {
		t.Errorf("Expected cancelled capture file to be removed, stat err: %v", err)
	}
	if s.State() != StatusIdle {
		t.Errorf("Expected idle after cancel, got %s", s.State())
	}

	// cancelling again, or with a failing backend, never panics or returns
	s.Cancel(ctx)
	s.Start(ctx, recording.QualityLow)
	backend.capture.stopErr = errors.New("boom")
	s.Cancel(ctx)
	if s.State() != StatusIdle {
		t.Errorf("Expected idle after failed cancel, got %s", s.State())
	}
}

func TestStatusIdle(t *testing.T) {
	s, _ := newTestSession(t, true)
	if st := s.Status(); st != (SessionStatus{}) {
		t.Errorf("Expected zero status when idle, got %+v", st)
	}
}

func TestStatusMetering(t *testing.T) {
	s, backend := newTestSession(t, true)
	s.Start(context.Background(), recording.QualityHigh)

	for _, level := range []float64{-30, -10, -20} {
		l := level
		backend.capture.level = &l
		s.Status()
	}
	st := s.Status()
	if st.Metering == nil {
		t.Fatal("Expected metering")
	}
	if st.Metering.Current != -20 || st.Metering.Peak != -10 {
		t.Errorf("Unexpected metering: %+v", st.Metering)
	}
	// samples: -30, -10, -20, -20
	if st.Metering.Average != -20 {
		t.Errorf("Expected average -20, got %v", st.Metering.Average)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("-23.5") != -23.5 {
		t.Error("Expected -23.5")
	}
	if parseLevel("-inf") != silenceDB {
		t.Error("Expected -inf to map to silence")
	}
	if parseLevel("garbage") != silenceDB {
		t.Error("Expected garbage to map to silence")
	}
}

func TestDefaultInput(t *testing.T) {
	if f, _ := DefaultInput("linux"); f != "pulse" {
		t.Errorf("Expected pulse on linux, got %s", f)
	}
	if f, d := DefaultInput("darwin"); f != "avfoundation" || d != ":default" {
		t.Errorf("Unexpected darwin input: %s %s", f, d)
	}
}
