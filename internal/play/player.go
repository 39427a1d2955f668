package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrNotLoaded       = errors.New("no sound loaded")
	ErrUnsupportedRate = errors.New("unsupported playback rate")
)

// Speeds are the playback rates a listener can pick
var Speeds = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// Standard skip intervals in milliseconds
const (
	SkipShort int64 = 10000
	SkipLong  int64 = 30000
)

// EngineStatus is what the playback engine reports about a loaded sound
type EngineStatus struct {
	IsLoaded       bool
	IsPlaying      bool
	PositionMillis int64
	DurationMillis int64
	DidJustFinish  bool
	Rate           float64
	IsLooping      bool
}

// Engine loads sounds on the host playback primitive
type Engine interface {
	Load(ctx context.Context, location string, onStatus func(EngineStatus)) (Sound, error)
}

// Sound is one loaded audio source
type Sound interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// Stop halts playback and rewinds to the start
	Stop(ctx context.Context) error
	SetPosition(ctx context.Context, millis int64) error
	SetRate(ctx context.Context, rate float64, correctPitch bool) error
	SetLooping(ctx context.Context, looping bool) error
	Status(ctx context.Context) (EngineStatus, error)
	Unload(ctx context.Context) error
}

// Status is forwarded to the registered observer on every engine update
type Status struct {
	IsPlaying      bool  `json:"isPlaying"`
	PositionMillis int64 `json:"positionMillis"`
	DurationMillis int64 `json:"durationMillis"`
	DidJustFinish  bool  `json:"didJustFinish"`
}

// State is a snapshot of the playback session
type State struct {
	IsLoaded       bool    `json:"isLoaded"`
	IsPlaying      bool    `json:"isPlaying"`
	PositionMillis int64   `json:"positionMillis"`
	DurationMillis int64   `json:"durationMillis"`
	Rate           float64 `json:"rate"`
	IsLooping      bool    `json:"isLooping"`
}

// Player holds at most one loaded sound. Loading another tears down the
// previous one first.
type Player struct {
	engine Engine

	mutex    sync.Mutex
	sound    Sound
	location string
	// generation identifies the loaded sound; updates from older sounds are dropped
	generation atomic.Uint64

	observerMutex sync.RWMutex
	observer      func(Status)
}

func NewPlayer(engine Engine) *Player {
	return &Player{engine: engine}
}

// SetStatusObserver registers the single status observer. A later call
// replaces the earlier observer; nil removes it.
func (p *Player) SetStatusObserver(fn func(Status)) {
	p.observerMutex.Lock()
	defer p.observerMutex.Unlock()
	p.observer = fn
}

// Load unloads any current sound and loads location paused at position 0
func (p *Player) Load(ctx context.Context, location string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.unloadLocked(ctx)

	gen := p.generation.Add(1)
	sound, err := p.engine.Load(ctx, location, func(es EngineStatus) {
		p.forward(gen, es)
	})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", location, err)
	}

	p.sound = sound
	p.location = location
	slog.Debug("Sound loaded", "location", location)
	return nil
}

func (p *Player) Play(ctx context.Context) error {
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	return sound.Play(ctx)
}

func (p *Player) Pause(ctx context.Context) error {
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	return sound.Pause(ctx)
}

// Stop halts playback and rewinds. It does nothing when no sound is loaded.
func (p *Player) Stop(ctx context.Context) error {
	p.mutex.Lock()
	sound := p.sound
	p.mutex.Unlock()
	if sound == nil {
		return nil
	}
	return sound.Stop(ctx)
}

// SeekTo moves to an absolute position; range handling is left to the engine
func (p *Player) SeekTo(ctx context.Context, millis int64) error {
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	return sound.SetPosition(ctx, millis)
}

// SetRate changes the playback speed with pitch correction
func (p *Player) SetRate(ctx context.Context, speed float64) error {
	if !IsSupportedSpeed(speed) {
		return fmt.Errorf("%w: %v (supported: %v)", ErrUnsupportedRate, speed, Speeds)
	}
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	return sound.SetRate(ctx, speed, true)
}

func (p *Player) SetLooping(ctx context.Context, looping bool) error {
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	return sound.SetLooping(ctx, looping)
}

func (p *Player) SkipForward(ctx context.Context, millis int64) error {
	return p.skip(ctx, millis)
}

func (p *Player) SkipBackward(ctx context.Context, millis int64) error {
	return p.skip(ctx, -millis)
}

// skip seeks relative to the current position, clamped to [0, duration]
func (p *Player) skip(ctx context.Context, delta int64) error {
	sound, err := p.loaded()
	if err != nil {
		return err
	}
	st, err := sound.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read position: %w", err)
	}
	target := st.PositionMillis + delta
	if target > st.DurationMillis {
		target = st.DurationMillis
	}
	if target < 0 {
		target = 0
	}
	return sound.SetPosition(ctx, target)
}

// Unload releases the current sound. Errors are logged; calling it with
// nothing loaded is a no-op.
func (p *Player) Unload(ctx context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.unloadLocked(ctx)
}

func (p *Player) unloadLocked(ctx context.Context) {
	if p.sound == nil {
		return
	}
	if err := p.sound.Unload(ctx); err != nil {
		slog.Warn("Failed to unload sound", "location", p.location, "error", err)
	}
	p.sound = nil
	p.location = ""
	p.generation.Add(1)
}

// State returns the current playback snapshot
func (p *Player) State(ctx context.Context) State {
	p.mutex.Lock()
	sound := p.sound
	p.mutex.Unlock()
	if sound == nil {
		return State{}
	}
	st, err := sound.Status(ctx)
	if err != nil {
		slog.Debug("Failed to read sound status", "error", err)
		return State{IsLoaded: true}
	}
	return State{
		IsLoaded:       true,
		IsPlaying:      st.IsPlaying,
		PositionMillis: st.PositionMillis,
		DurationMillis: st.DurationMillis,
		Rate:           st.Rate,
		IsLooping:      st.IsLooping,
	}
}

// CurrentLocation is the loaded file, or "" when nothing is loaded
func (p *Player) CurrentLocation() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.location
}

func (p *Player) IsLoaded() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sound != nil
}

func (p *Player) loaded() (Sound, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.sound == nil {
		return nil, ErrNotLoaded
	}
	return p.sound, nil
}

// forward relays engine updates for the current sound to the observer
func (p *Player) forward(gen uint64, es EngineStatus) {
	if p.generation.Load() != gen {
		return
	}

	p.observerMutex.RLock()
	observer := p.observer
	p.observerMutex.RUnlock()
	if observer == nil {
		return
	}
	observer(Status{
		IsPlaying:      es.IsPlaying,
		PositionMillis: es.PositionMillis,
		DurationMillis: es.DurationMillis,
		DidJustFinish:  es.DidJustFinish,
	})
}

// IsSupportedSpeed reports whether speed is one of Speeds
func IsSupportedSpeed(speed float64) bool {
	for _, s := range Speeds {
		if s == speed {
			return true
		}
	}
	return false
}
