package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/audiorec/internal/audio"
	"github.com/audiolibrelab/audiorec/internal/recording"
	"github.com/audiolibrelab/audiorec/internal/settings"
)

var ErrNotFound = errors.New("recording not found")

// Service represents the core AudioRec service interface
type Service interface {
	Init(ctx context.Context) error

	// Capture operations
	StartRecording(ctx context.Context, quality recording.Quality) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	FinishRecording(ctx context.Context, customTitle string) (*recording.Recording, error)
	CancelRecording(ctx context.Context)
	RecordingStatus() audio.SessionStatus

	// Library operations
	AddRecording(ctx context.Context, rec *recording.Recording) error
	GetRecording(ctx context.Context, id string) (*recording.Recording, error)
	UpdateRecording(ctx context.Context, upd recording.Update) error
	DeleteRecording(ctx context.Context, id string) error
	DeleteRecordings(ctx context.Context, ids []string) (int, error)
	SearchRecordings(ctx context.Context, query string) error
	SortRecordings(ctx context.Context, by recording.SortOption, order recording.SortOrder) error
	Favorites(ctx context.Context) ([]recording.Recording, error)
	ByCategory(ctx context.Context, category string) ([]recording.Recording, error)
	Categories(ctx context.Context) ([]string, error)
	Statistics(ctx context.Context) (recording.Statistics, error)
	StorageInfo() recording.StorageInfo
	ExportRecording(ctx context.Context, id string) (string, error)
	PlayRecording(ctx context.Context, id string) (*recording.Recording, error)

	// Housekeeping
	PurgeExpired(ctx context.Context) (int, error)
	Orphans(ctx context.Context) ([]string, error)
	RemoveOrphans(ctx context.Context) (int, error)

	// Preferences
	Settings(ctx context.Context) (settings.RecordingSettings, error)
	SaveSettings(ctx context.Context, patch settings.Patch) (settings.RecordingSettings, error)
	ResetSettings(ctx context.Context) (settings.RecordingSettings, error)
	Theme(ctx context.Context) (settings.Theme, error)
	SaveTheme(ctx context.Context, theme settings.Theme) error

	// Presentation list
	Snapshot() Snapshot
	Subscribe(fn func(Snapshot)) (unsubscribe func())
	GetLastError() string
}

// MetadataStore is the recordings table
type MetadataStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec *recording.Recording) error
	Get(ctx context.Context, id string) (*recording.Recording, bool, error)
	GetAll(ctx context.Context, sortBy recording.SortOption, order recording.SortOrder) ([]recording.Recording, error)
	Search(ctx context.Context, q string) ([]recording.Recording, error)
	GetByCategory(ctx context.Context, category string) ([]recording.Recording, error)
	GetFavorites(ctx context.Context) ([]recording.Recording, error)
	GetCategories(ctx context.Context) ([]string, error)
	GetOlderThan(ctx context.Context, cutoff time.Time) ([]recording.Recording, error)
	Update(ctx context.Context, upd recording.Update) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
	GetStatistics(ctx context.Context) (recording.Statistics, error)
}

// FileStore owns the recordings directory
type FileStore interface {
	Init() error
	NameFor(format recording.Format) string
	Place(src, fileName string) (string, error)
	Remove(location string) error
	RemoveMany(locations []string) (map[string]error, error)
	SizeOf(location string) int64
	Orphans(known []string) ([]string, error)
	StorageInfo() recording.StorageInfo
	ExportCopy(location string) (string, bool)
}

type SettingsStore interface {
	Get(ctx context.Context) (settings.RecordingSettings, error)
	Save(ctx context.Context, patch settings.Patch) (settings.RecordingSettings, error)
	Reset(ctx context.Context) (settings.RecordingSettings, error)
	Theme(ctx context.Context) (settings.Theme, error)
	SaveTheme(ctx context.Context, theme settings.Theme) error
}

// CaptureSession is the microphone state machine
type CaptureSession interface {
	Start(ctx context.Context, quality recording.Quality) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) (*audio.Result, error)
	Cancel(ctx context.Context)
	Status() audio.SessionStatus
}

// Playback is the part of the player the library has to coordinate with
type Playback interface {
	Load(ctx context.Context, location string) error
	Unload(ctx context.Context)
	CurrentLocation() string
}

// Snapshot is the presentation-facing list and its status
type Snapshot struct {
	Recordings []recording.Recording `json:"recordings"`
	IsLoading  bool                  `json:"isLoading"`
	Error      string                `json:"error,omitempty"`
	SortBy     recording.SortOption  `json:"sortBy"`
	SortOrder  recording.SortOrder   `json:"sortOrder"`
	Query      string                `json:"query"`
}

// Deps are the components a RecorderService is built from
type Deps struct {
	Store    MetadataStore
	Files    FileStore
	Settings SettingsStore
	Capture  CaptureSession
	Player   Playback
	// Now and NewID default to time.Now and UUIDv7
	Now   func() time.Time
	NewID func() (string, error)
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// RecorderService is the main service implementation
type RecorderService struct {
	store    MetadataStore
	files    FileStore
	settings SettingsStore
	capture  CaptureSession
	player   Playback
	now      func() time.Time
	newID    func() (string, error)

	listMutex   sync.Mutex
	recordings  []recording.Recording
	loading     bool
	listError   string
	sortBy      recording.SortOption
	sortOrder   recording.SortOrder
	query       string
	subscribers []subscriber
	nextSubID   int

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new AudioRec service instance
func New(deps Deps) *RecorderService {
	s := &RecorderService{
		store:     deps.Store,
		files:     deps.Files,
		settings:  deps.Settings,
		capture:   deps.Capture,
		player:    deps.Player,
		now:       deps.Now,
		newID:     deps.NewID,
		sortBy:    recording.SortByDate,
		sortOrder: recording.Descending,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Init prepares storage, applies the auto-delete policy and loads the list
func (s *RecorderService) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	if err := s.files.Init(); err != nil {
		return err
	}
	if _, err := s.PurgeExpired(ctx); err != nil {
		slog.Warn("Auto-delete failed", "error", err)
	}
	if err := s.refresh(ctx); err != nil {
		slog.Warn("Initial recordings load failed", "error", err)
	}
	return nil
}

// StartRecording begins a capture; an empty quality uses the saved setting
func (s *RecorderService) StartRecording(ctx context.Context, quality recording.Quality) error {
	s.clearLastError()
	if quality == "" {
		quality = s.currentSettings(ctx).Quality
	}
	slog.Debug("Service.StartRecording called", "quality", quality)
	if err := s.capture.Start(ctx, quality); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	return nil
}

func (s *RecorderService) PauseRecording(ctx context.Context) error {
	if err := s.capture.Pause(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to pause recording: %v", err))
		return err
	}
	return nil
}

func (s *RecorderService) ResumeRecording(ctx context.Context) error {
	if err := s.capture.Resume(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to resume recording: %v", err))
		return err
	}
	return nil
}

func (s *RecorderService) RecordingStatus() audio.SessionStatus {
	return s.capture.Status()
}

// CancelRecording discards the current capture. Failures are only logged.
func (s *RecorderService) CancelRecording(ctx context.Context) {
	s.capture.Cancel(ctx)
	s.clearLastError()
}

// FinishRecording stops the capture, copies the file into the library and
// stores its metadata. The capture file is removed only once the row is
// saved; on any failure it is kept and its path is part of the error.
func (s *RecorderService) FinishRecording(ctx context.Context, customTitle string) (*recording.Recording, error) {
	result, err := s.capture.Stop(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return nil, err
	}

	format, err := recording.FormatForLocation(result.Location)
	if err != nil {
		return nil, s.keepCapture(result.Location, err)
	}

	placed, err := s.files.Place(result.Location, s.files.NameFor(format))
	if err != nil {
		return nil, s.keepCapture(result.Location, err)
	}

	id, err := s.newID()
	if err != nil {
		s.removePlaced(placed)
		return nil, s.keepCapture(result.Location, fmt.Errorf("failed to generate recording id: %w", err))
	}

	finishedAt := s.now()
	rec := &recording.Recording{
		ID:             id,
		Title:          s.titleFor(ctx, customTitle, finishedAt),
		Location:       placed,
		DurationMillis: result.DurationMillis,
		Size:           s.files.SizeOf(placed),
		CreatedAt:      recording.Timestamp(finishedAt),
		Format:         format,
		IsFavorite:     false,
	}

	if err := s.store.Save(ctx, rec); err != nil {
		s.removePlaced(placed)
		return nil, s.keepCapture(result.Location, err)
	}
	s.discardCapture(result.Location)

	slog.Info("Recording saved",
		"id", rec.ID,
		"title", rec.Title,
		"duration", recording.FormatDuration(rec.DurationMillis),
		"size", recording.FormatBytes(rec.Size))
	s.clearLastError()
	s.refreshAfterMutation(ctx)
	return rec, nil
}

// keepCapture reports a failed save. The captured audio stays at location.
func (s *RecorderService) keepCapture(location string, err error) error {
	slog.Error("Recording not saved, captured audio kept", "path", location, "error", err)
	s.setLastError(fmt.Sprintf("Failed to save recording (audio kept at %s): %v", location, err))
	return fmt.Errorf("recording not saved, audio kept at %s: %w", location, err)
}

func (s *RecorderService) titleFor(ctx context.Context, customTitle string, at time.Time) string {
	customTitle = strings.TrimSpace(customTitle)
	if customTitle != "" {
		if s.currentSettings(ctx).NamingConvention == settings.NamingCustom {
			return customTitle
		}
		slog.Debug("Custom title ignored, naming convention is timestamp", "title", customTitle)
	}
	return recording.DefaultTitle(at.Local())
}

// discardCapture removes the capture backend's temporary file
func (s *RecorderService) discardCapture(location string) {
	if err := s.files.Remove(location); err != nil {
		slog.Warn("Failed to remove temporary capture file", "path", location, "error", err)
	}
}

func (s *RecorderService) removePlaced(location string) {
	if err := s.files.Remove(location); err != nil {
		slog.Error("Failed to remove unsaved recording file", "path", location, "error", err)
	}
}

// AddRecording stores an externally produced recording
func (s *RecorderService) AddRecording(ctx context.Context, rec *recording.Recording) error {
	if err := s.store.Save(ctx, rec); err != nil {
		return err
	}
	s.refreshAfterMutation(ctx)
	return nil
}

func (s *RecorderService) GetRecording(ctx context.Context, id string) (*recording.Recording, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (s *RecorderService) UpdateRecording(ctx context.Context, upd recording.Update) error {
	if err := s.store.Update(ctx, upd); err != nil {
		s.setLastError(fmt.Sprintf("Failed to update recording: %v", err))
		return err
	}
	s.refreshAfterMutation(ctx)
	return nil
}

// DeleteRecording removes the file and then the row. An unknown id is a
// no-op; a failure after the file is gone is reported as such.
func (s *RecorderService) DeleteRecording(ctx context.Context, id string) error {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up recording %s: %w", id, err)
	}
	if !ok {
		slog.Debug("Delete of unknown recording ignored", "id", id)
		return nil
	}

	s.releasePlayer(ctx, rec.Location)

	if err := s.files.Remove(rec.Location); err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete recording: %v", err))
		return fmt.Errorf("recording %s kept, file removal failed: %w", id, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete recording: %v", err))
		s.refreshAfterMutation(ctx)
		return fmt.Errorf("file of recording %s removed but metadata remains: %w", id, err)
	}

	slog.Info("Recording deleted", "id", id, "title", rec.Title)
	s.refreshAfterMutation(ctx)
	return nil
}

// DeleteRecordings removes every file first, then the rows whose files
// are gone. Rows of files that could not be removed are kept.
// DeleteRecordings removes every listed recording it can and reports how many
// were actually deleted. Unknown ids are skipped.
func (s *RecorderService) DeleteRecordings(ctx context.Context, ids []string) (int, error) {
	var errs []error
	var locations []string
	byLocation := make(map[string]string)
	for _, id := range ids {
		rec, ok, err := s.store.Get(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to look up recording %s: %w", id, err))
			continue
		}
		if !ok {
			continue
		}
		s.releasePlayer(ctx, rec.Location)
		locations = append(locations, rec.Location)
		byLocation[rec.Location] = rec.ID
	}

	failed, err := s.files.RemoveMany(locations)
	if err != nil {
		errs = append(errs, err)
	}

	var removable []string
	for _, loc := range locations {
		if _, bad := failed[loc]; !bad {
			removable = append(removable, byLocation[loc])
		}
	}
	deleted := len(removable)
	if err := s.store.DeleteMany(ctx, removable); err != nil {
		errs = append(errs, fmt.Errorf("files removed but metadata of %d recordings remains: %w", len(removable), err))
		deleted = 0
	}

	slog.Info("Recordings deleted", "requested", len(ids), "removed", deleted)
	s.refreshAfterMutation(ctx)

	if joined := errors.Join(errs...); joined != nil {
		s.setLastError(fmt.Sprintf("Failed to delete recordings: %v", joined))
		return deleted, joined
	}
	return deleted, nil
}

// releasePlayer unloads the player when it holds location
func (s *RecorderService) releasePlayer(ctx context.Context, location string) {
	if s.player != nil && s.player.CurrentLocation() == location {
		s.player.Unload(ctx)
	}
}

func (s *RecorderService) SearchRecordings(ctx context.Context, query string) error {
	s.listMutex.Lock()
	s.query = strings.TrimSpace(query)
	s.listMutex.Unlock()
	return s.refresh(ctx)
}

func (s *RecorderService) SortRecordings(ctx context.Context, by recording.SortOption, order recording.SortOrder) error {
	s.listMutex.Lock()
	s.sortBy = by
	s.sortOrder = order
	s.listMutex.Unlock()
	return s.refresh(ctx)
}

func (s *RecorderService) Favorites(ctx context.Context) ([]recording.Recording, error) {
	return s.store.GetFavorites(ctx)
}

func (s *RecorderService) ByCategory(ctx context.Context, category string) ([]recording.Recording, error) {
	return s.store.GetByCategory(ctx, category)
}

func (s *RecorderService) Categories(ctx context.Context) ([]string, error) {
	return s.store.GetCategories(ctx)
}

func (s *RecorderService) Statistics(ctx context.Context) (recording.Statistics, error) {
	return s.store.GetStatistics(ctx)
}

func (s *RecorderService) StorageInfo() recording.StorageInfo {
	return s.files.StorageInfo()
}

// ExportRecording copies the file to the export area and returns the copy
func (s *RecorderService) ExportRecording(ctx context.Context, id string) (string, error) {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return "", err
	}
	dst, ok := s.files.ExportCopy(rec.Location)
	if !ok {
		return "", fmt.Errorf("failed to export recording %s", id)
	}
	return dst, nil
}

// PlayRecording loads the recording's file into the player
func (s *RecorderService) PlayRecording(ctx context.Context, id string) (*recording.Recording, error) {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.player == nil {
		return nil, fmt.Errorf("no player configured")
	}
	if err := s.player.Load(ctx, rec.Location); err != nil {
		s.setLastError(fmt.Sprintf("Failed to load recording: %v", err))
		return nil, err
	}
	return rec, nil
}

// PurgeExpired deletes recordings older than autoDeleteDays when
// auto-delete is enabled and returns how many were removed
func (s *RecorderService) PurgeExpired(ctx context.Context) (int, error) {
	cfg := s.currentSettings(ctx)
	if !cfg.AutoDelete || cfg.AutoDeleteDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -cfg.AutoDeleteDays)
	expired, err := s.store.GetOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, len(expired))
	for i, rec := range expired {
		ids[i] = rec.ID
	}
	slog.Info("Deleting expired recordings", "count", len(ids), "older_than_days", cfg.AutoDeleteDays)
	return s.DeleteRecordings(ctx, ids)
}

// Orphans lists files in the recordings directory that no row references
func (s *RecorderService) Orphans(ctx context.Context) ([]string, error) {
	all, err := s.store.GetAll(ctx, recording.SortByDate, recording.Descending)
	if err != nil {
		return nil, err
	}
	known := make([]string, len(all))
	for i, rec := range all {
		known[i] = rec.Location
	}
	return s.files.Orphans(known)
}

func (s *RecorderService) RemoveOrphans(ctx context.Context) (int, error) {
	orphans, err := s.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	failed, err := s.files.RemoveMany(orphans)
	removed := len(orphans) - len(failed)
	if removed > 0 {
		slog.Info("Orphaned files removed", "count", removed)
	}
	return removed, err
}

func (s *RecorderService) Settings(ctx context.Context) (settings.RecordingSettings, error) {
	return s.settings.Get(ctx)
}

func (s *RecorderService) SaveSettings(ctx context.Context, patch settings.Patch) (settings.RecordingSettings, error) {
	return s.settings.Save(ctx, patch)
}

func (s *RecorderService) ResetSettings(ctx context.Context) (settings.RecordingSettings, error) {
	return s.settings.Reset(ctx)
}

func (s *RecorderService) Theme(ctx context.Context) (settings.Theme, error) {
	return s.settings.Theme(ctx)
}

func (s *RecorderService) SaveTheme(ctx context.Context, theme settings.Theme) error {
	return s.settings.SaveTheme(ctx, theme)
}

func (s *RecorderService) currentSettings(ctx context.Context) settings.RecordingSettings {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		slog.Warn("Failed to read settings, using defaults", "error", err)
		return settings.Defaults()
	}
	return cfg
}

// Snapshot returns a copy of the presentation list
func (s *RecorderService) Snapshot() Snapshot {
	s.listMutex.Lock()
	defer s.listMutex.Unlock()
	return s.snapshotLocked()
}

func (s *RecorderService) snapshotLocked() Snapshot {
	return Snapshot{
		Recordings: append([]recording.Recording(nil), s.recordings...),
		IsLoading:  s.loading,
		Error:      s.listError,
		SortBy:     s.sortBy,
		SortOrder:  s.sortOrder,
		Query:      s.query,
	}
}

// Subscribe registers fn to receive the list after every refresh attempt
func (s *RecorderService) Subscribe(fn func(Snapshot)) func() {
	s.listMutex.Lock()
	defer s.listMutex.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	return func() {
		s.listMutex.Lock()
		defer s.listMutex.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// refresh reloads the list for the current query or sort. On failure the
// previous list is kept and the error recorded.
func (s *RecorderService) refresh(ctx context.Context) error {
	s.listMutex.Lock()
	s.loading = true
	query, by, order := s.query, s.sortBy, s.sortOrder
	s.listMutex.Unlock()

	var recs []recording.Recording
	var err error
	if query != "" {
		recs, err = s.store.Search(ctx, query)
	} else {
		recs, err = s.store.GetAll(ctx, by, order)
	}

	s.listMutex.Lock()
	s.loading = false
	if err != nil {
		s.listError = err.Error()
	} else {
		s.recordings = recs
		s.listError = ""
	}
	snapshot := s.snapshotLocked()
	subs := append([]subscriber(nil), s.subscribers...)
	s.listMutex.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}

	if err != nil {
		return fmt.Errorf("failed to load recordings: %w", err)
	}
	return nil
}

// refreshAfterMutation refreshes without failing the mutation that preceded it
func (s *RecorderService) refreshAfterMutation(ctx context.Context) {
	if err := s.refresh(ctx); err != nil {
		slog.Warn("Recordings list refresh failed", "error", err)
	}
}

// GetLastError returns the last error message for user-facing surfaces
func (s *RecorderService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *RecorderService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
}

func (s *RecorderService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
