package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

// Status represents the current state of the capture session
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRecording Status = "RECORDING"
	StatusPaused    Status = "PAUSED"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrInvalidState     = errors.New("invalid capture state")
	ErrNoActiveSession  = errors.New("no active capture session")
)

// silenceDB is reported for an input with no measurable signal
const silenceDB = -160.0

// Permissions answers whether the microphone may be used
type Permissions interface {
	MicrophoneGranted() (bool, error)
}

// Backend starts platform captures
type Backend interface {
	Start(ctx context.Context, cfg EncoderConfig) (Capture, error)
}

// Capture is one in-progress platform capture
type Capture interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	// Stop finalizes the capture and returns the produced file and its duration
	Stop(ctx context.Context) (location string, durationMillis int64, err error)
	Status() CaptureStatus
}

// CaptureStatus is what a backend reports about its running capture
type CaptureStatus struct {
	DurationMillis int64
	// LevelDB is the latest input level in dBFS, nil when not measured yet
	LevelDB *float64
}

// Metering summarizes input levels in dBFS
type Metering struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
}

// SessionStatus is the snapshot returned by Session.Status
type SessionStatus struct {
	IsRecording    bool      `json:"isRecording"`
	IsPaused       bool      `json:"isPaused"`
	DurationMillis int64     `json:"durationMillis"`
	Metering       *Metering `json:"metering,omitempty"`
	LimitReached   bool      `json:"limitReached"`
}

// Result describes a finished capture
type Result struct {
	Location       string            `json:"location"`
	DurationMillis int64             `json:"durationMillis"`
	Quality        recording.Quality `json:"quality"`
	Encoder        EncoderConfig     `json:"encoder"`
}

// Session is the capture state machine: IDLE -> RECORDING <-> PAUSED -> IDLE
type Session struct {
	backend  Backend
	perms    Permissions
	platform Platform

	mutex   sync.Mutex
	status  Status
	capture Capture
	quality recording.Quality
	encoder EncoderConfig

	levelSum   float64
	levelCount int
	levelPeak  float64
}

// NewSession creates an idle capture session
func NewSession(backend Backend, perms Permissions, platform Platform) *Session {
	return &Session{
		backend:  backend,
		perms:    perms,
		platform: platform,
		status:   StatusIdle,
	}
}

// Start begins a capture at the given quality (IDLE -> RECORDING)
func (s *Session) Start(ctx context.Context, quality recording.Quality) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusIdle {
		return fmt.Errorf("%w: can only start from idle state, current: %s", ErrInvalidState, s.status)
	}

	granted, err := s.perms.MicrophoneGranted()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	encoder, err := Presets(quality, s.platform)
	if err != nil {
		return err
	}

	capture, err := s.backend.Start(ctx, encoder)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.capture = capture
	s.quality = quality
	s.encoder = encoder
	s.status = StatusRecording
	s.resetLevels()

	slog.Info("Capture started", "quality", quality, "platform", s.platform,
		"sample_rate", encoder.SampleRate, "channels", encoder.Channels, "bit_rate", encoder.BitRate)
	return nil
}

// Pause suspends a running capture (RECORDING -> PAUSED)
func (s *Session) Pause(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusRecording {
		return fmt.Errorf("%w: can only pause from recording state, current: %s", ErrInvalidState, s.status)
	}
	if err := s.capture.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause capture: %w", err)
	}
	s.status = StatusPaused
	slog.Debug("Capture paused")
	return nil
}

// Resume continues a paused capture (PAUSED -> RECORDING)
func (s *Session) Resume(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusPaused {
		return fmt.Errorf("%w: can only resume from paused state, current: %s", ErrInvalidState, s.status)
	}
	if err := s.capture.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}
	s.status = StatusRecording
	slog.Debug("Capture resumed")
	return nil
}

// Stop finalizes the capture. The session is idle afterwards even when the
// backend fails.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == StatusIdle {
		return nil, ErrNoActiveSession
	}

	capture, quality, encoder := s.capture, s.quality, s.encoder
	s.reset()

	location, duration, err := capture.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stop capture: %w", err)
	}
	if duration < 0 {
		duration = 0
	}

	slog.Info("Capture stopped", "location", location, "duration_ms", duration)
	return &Result{
		Location:       location,
		DurationMillis: duration,
		Quality:        quality,
		Encoder:        encoder,
	}, nil
}

// Cancel stops and discards the capture. Errors are logged, not returned.
func (s *Session) Cancel(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == StatusIdle {
		return
	}
	capture := s.capture
	s.reset()

	location, _, err := capture.Stop(ctx)
	if err != nil {
		slog.Warn("Failed to stop cancelled capture", "error", err)
	}
	if location != "" {
		if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove cancelled capture file", "path", location, "error", err)
		}
	}
	slog.Info("Capture cancelled")
}

// Status is a non-blocking snapshot meant to be polled while recording
func (s *Session) Status() SessionStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == StatusIdle {
		return SessionStatus{}
	}

	cs := s.capture.Status()
	st := SessionStatus{
		IsRecording:    s.status == StatusRecording,
		IsPaused:       s.status == StatusPaused,
		DurationMillis: cs.DurationMillis,
	}
	if st.DurationMillis < 0 {
		st.DurationMillis = 0
	}
	st.LimitReached = time.Duration(st.DurationMillis)*time.Millisecond >= recording.MaxRecordingDuration

	if cs.LevelDB != nil {
		level := *cs.LevelDB
		if s.status == StatusRecording {
			s.levelSum += level
			s.levelCount++
			if s.levelCount == 1 || level > s.levelPeak {
				s.levelPeak = level
			}
		}
		st.Metering = &Metering{Current: level, Average: level, Peak: level}
		if s.levelCount > 0 {
			st.Metering.Average = s.levelSum / float64(s.levelCount)
			st.Metering.Peak = s.levelPeak
		}
	}
	return st
}

// State returns the raw state machine position
func (s *Session) State() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

func (s *Session) reset() {
	s.status = StatusIdle
	s.capture = nil
	s.quality = ""
	s.encoder = EncoderConfig{}
	s.resetLevels()
}

func (s *Session) resetLevels() {
	s.levelSum = 0
	s.levelCount = 0
	s.levelPeak = silenceDB
}

// AllowAll grants microphone access unconditionally
type AllowAll struct{}

func (AllowAll) MicrophoneGranted() (bool, error) { return true, nil }
