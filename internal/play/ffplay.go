package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFplayEngine plays files through an ffplay child process. Every seek,
// pause or rate change restarts the child at the computed position.
type FFplayEngine struct {
	FFplayPath     string
	FFprobePath    string
	StatusInterval time.Duration
}

func (e *FFplayEngine) Load(ctx context.Context, location string, onStatus func(EngineStatus)) (Sound, error) {
	if _, err := os.Stat(location); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	ffplay := e.FFplayPath
	if ffplay == "" {
		ffplay = "ffplay"
	}
	if _, err := exec.LookPath(ffplay); err != nil {
		return nil, fmt.Errorf("ffplay not found: %w", err)
	}

	duration, err := ProbeDuration(ctx, e.FFprobePath, location)
	if err != nil {
		return nil, err
	}

	interval := e.StatusInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	s := &ffplaySound{
		binary:   ffplay,
		location: location,
		duration: duration,
		rate:     1.0,
		onStatus: onStatus,
		quit:     make(chan struct{}),
	}
	go s.tick(interval)
	return s, nil
}

// ProbeDuration asks ffprobe for the container duration in milliseconds
func ProbeDuration(ctx context.Context, ffprobe, location string) (int64, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		location).Output()
	if err != nil {
		return 0, fmt.Errorf("failed to probe duration of %s: %w", location, err)
	}
	return parseProbeDuration(string(out))
}

func parseProbeDuration(out string) (int64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", strings.TrimSpace(out), err)
	}
	if seconds < 0 {
		seconds = 0
	}
	return int64(seconds * 1000), nil
}

type ffplaySound struct {
	binary   string
	location string
	duration int64
	onStatus func(EngineStatus)
	quit     chan struct{}

	mutex      sync.Mutex
	unloaded   bool
	playing    bool
	looping    bool
	rate       float64
	position   int64 // at anchor
	anchor     time.Time
	cmd        *exec.Cmd
	generation uint64
}

var errUnloaded = errors.New("sound has been unloaded")

func (s *ffplaySound) Play(ctx context.Context) error {
	s.mutex.Lock()
	if s.unloaded {
		s.mutex.Unlock()
		return errUnloaded
	}
	if s.playing {
		s.mutex.Unlock()
		return nil
	}
	if s.position >= s.duration {
		s.position = 0
	}
	err := s.startLocked()
	st := s.statusLocked(false)
	s.mutex.Unlock()

	if err != nil {
		return err
	}
	s.emit(st)
	return nil
}

func (s *ffplaySound) Pause(ctx context.Context) error {
	return s.halt(func() { s.position = s.positionLocked() })
}

func (s *ffplaySound) Stop(ctx context.Context) error {
	return s.halt(func() { s.position = 0 })
}

// halt kills the child, applies reposition and reports the new state
func (s *ffplaySound) halt(reposition func()) error {
	s.mutex.Lock()
	if s.unloaded {
		s.mutex.Unlock()
		return errUnloaded
	}
	reposition()
	s.killLocked()
	s.playing = false
	st := s.statusLocked(false)
	s.mutex.Unlock()

	s.emit(st)
	return nil
}

func (s *ffplaySound) SetPosition(ctx context.Context, millis int64) error {
	return s.reconfigure(func() {
		if millis < 0 {
			millis = 0
		}
		if millis > s.duration {
			millis = s.duration
		}
		s.position = millis
	})
}

// SetRate always keeps pitch: ffplay's atempo filter time-stretches
func (s *ffplaySound) SetRate(ctx context.Context, rate float64, correctPitch bool) error {
	if rate <= 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedRate, rate)
	}
	if !correctPitch {
		slog.Debug("ffplay engine always preserves pitch")
	}
	return s.reconfigure(func() {
		s.position = s.positionLocked()
		s.rate = rate
	})
}

func (s *ffplaySound) SetLooping(ctx context.Context, looping bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.unloaded {
		return errUnloaded
	}
	s.looping = looping
	return nil
}

// reconfigure applies change and restarts the child when playing
func (s *ffplaySound) reconfigure(change func()) error {
	s.mutex.Lock()
	if s.unloaded {
		s.mutex.Unlock()
		return errUnloaded
	}
	wasPlaying := s.playing
	if wasPlaying {
		s.position = s.positionLocked()
		s.killLocked()
		s.playing = false
	}
	change()

	var err error
	if wasPlaying {
		err = s.startLocked()
	}
	st := s.statusLocked(false)
	s.mutex.Unlock()

	s.emit(st)
	return err
}

func (s *ffplaySound) Status(ctx context.Context) (EngineStatus, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.unloaded {
		return EngineStatus{}, errUnloaded
	}
	return s.statusLocked(false), nil
}

func (s *ffplaySound) Unload(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.unloaded {
		return nil
	}
	s.killLocked()
	s.playing = false
	s.unloaded = true
	close(s.quit)
	return nil
}

// startLocked launches ffplay from the current position at the current rate
func (s *ffplaySound) startLocked() error {
	args := []string{
		"-nodisp", "-autoexit",
		"-loglevel", "quiet",
		"-ss", strconv.FormatFloat(float64(s.position)/1000, 'f', 3, 64),
	}
	if s.rate != 1.0 {
		args = append(args, "-af", "atempo="+strconv.FormatFloat(s.rate, 'f', -1, 64))
	}
	args = append(args, s.location)

	cmd := exec.Command(s.binary, args...)
	if err := cmd.Start(); err != nil {
		s.playing = false
		return fmt.Errorf("failed to start ffplay: %w", err)
	}
	slog.Debug("ffplay started", "location", s.location, "position_ms", s.position, "rate", s.rate)

	s.generation++
	s.cmd = cmd
	s.playing = true
	s.anchor = time.Now()
	go s.watch(cmd, s.generation)
	return nil
}

// killLocked stops the running child; its watcher sees a stale generation
func (s *ffplaySound) killLocked() {
	if s.cmd == nil {
		return
	}
	s.generation++
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil
}

// watch waits for a child to exit and handles natural end of playback
func (s *ffplaySound) watch(cmd *exec.Cmd, gen uint64) {
	err := cmd.Wait()

	s.mutex.Lock()
	if s.generation != gen || s.unloaded {
		s.mutex.Unlock()
		return
	}
	s.cmd = nil
	if err != nil {
		slog.Warn("ffplay exited with error", "location", s.location, "error", err)
	}

	s.playing = false
	s.position = s.duration
	finished := s.statusLocked(true)

	var restartErr error
	var restarted EngineStatus
	if s.looping && err == nil {
		s.position = 0
		restartErr = s.startLocked()
		restarted = s.statusLocked(false)
	}
	looped := s.looping && err == nil
	s.mutex.Unlock()

	s.emit(finished)
	if looped {
		if restartErr != nil {
			slog.Error("Failed to restart looping playback", "error", restartErr)
			return
		}
		s.emit(restarted)
	}
}

// tick publishes status while playing until the sound is unloaded
func (s *ffplaySound) tick(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.mutex.Lock()
			playing := s.playing && !s.unloaded
			st := s.statusLocked(false)
			s.mutex.Unlock()
			if playing {
				s.emit(st)
			}
		}
	}
}

func (s *ffplaySound) positionLocked() int64 {
	pos := s.position
	if s.playing {
		pos += int64(float64(time.Since(s.anchor).Milliseconds()) * s.rate)
	}
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *ffplaySound) statusLocked(finished bool) EngineStatus {
	return EngineStatus{
		IsLoaded:       !s.unloaded,
		IsPlaying:      s.playing,
		PositionMillis: s.positionLocked(),
		DurationMillis: s.duration,
		DidJustFinish:  finished,
		Rate:           s.rate,
		IsLooping:      s.looping,
	}
}

func (s *ffplaySound) emit(st EngineStatus) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
