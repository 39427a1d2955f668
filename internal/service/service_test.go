package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/audiorec/internal/audio"
	"github.com/audiolibrelab/audiorec/internal/files"
	"github.com/audiolibrelab/audiorec/internal/recording"
	"github.com/audiolibrelab/audiorec/internal/settings"
	"github.com/audiolibrelab/audiorec/internal/store"
)

type fakeDisk struct{}

func (fakeDisk) Usage(string) (uint64, uint64, error) { return 1 << 30, 1 << 29, nil }

type fakeBackend struct {
	dir      string
	duration int64
	count    int
}

func (b *fakeBackend) Start(ctx context.Context, cfg audio.EncoderConfig) (audio.Capture, error) {
	b.count++
	return &fakeCapture{
		location: filepath.Join(b.dir, fmt.Sprintf("capture-%d%s", b.count, cfg.Extension)),
		duration: b.duration,
	}, nil
}

type fakeCapture struct {
	location string
	duration int64
}

func (c *fakeCapture) Pause(context.Context) error  { return nil }
func (c *fakeCapture) Resume(context.Context) error { return nil }
func (c *fakeCapture) Stop(context.Context) (string, int64, error) {
	if err := os.WriteFile(c.location, []byte("fake aac payload"), 0644); err != nil {
		return "", 0, err
	}
	return c.location, c.duration, nil
}
func (c *fakeCapture) Status() audio.CaptureStatus {
	return audio.CaptureStatus{DurationMillis: c.duration}
}

type fakePlayer struct {
	location string
	unloads  int
}

func (p *fakePlayer) Load(_ context.Context, location string) error {
	p.location = location
	return nil
}
func (p *fakePlayer) Unload(context.Context) {
	p.location = ""
	p.unloads++
}
func (p *fakePlayer) CurrentLocation() string { return p.location }

// flakyStore lets a test break individual store operations
type flakyStore struct {
	*store.Store
	saveErr   error
	getAllErr error
	deleteErr error
}

func (s *flakyStore) Save(ctx context.Context, rec *recording.Recording) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, rec)
}

func (s *flakyStore) GetAll(ctx context.Context, by recording.SortOption, order recording.SortOrder) ([]recording.Recording, error) {
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	return s.Store.GetAll(ctx, by, order)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, id)
}

type testEnv struct {
	svc      *RecorderService
	store    *flakyStore
	files    *files.Manager
	settings *settings.Store
	player   *fakePlayer
	backend  *fakeBackend
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()

	db, err := store.Open(filepath.Join(base, "recordings.db"), false)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		store:    &flakyStore{Store: db},
		files:    files.New(filepath.Join(base, "data"), filepath.Join(base, "export"), fakeDisk{}),
		settings: settings.New(db),
		player:   &fakePlayer{},
		backend:  &fakeBackend{dir: t.TempDir(), duration: 1500},
		now:      time.Date(2026, 3, 5, 14, 7, 0, 0, time.UTC),
	}

	ids := 0
	env.svc = New(Deps{
		Store:    env.store,
		Files:    env.files,
		Settings: env.settings,
		Capture:  audio.NewSession(env.backend, audio.AllowAll{}, audio.PlatformAndroid),
		Player:   env.player,
		Now:      func() time.Time { return env.now },
		NewID: func() (string, error) {
			ids++
			return fmt.Sprintf("rec-%03d", ids), nil
		},
	})
	if err := env.svc.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return env
}

// record runs a full capture and returns the saved recording
func (e *testEnv) record(t *testing.T, title string) *recording.Recording {
	t.Helper()
	ctx := context.Background()
	if err := e.svc.StartRecording(ctx, recording.QualityHigh); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	rec, err := e.svc.FinishRecording(ctx, title)
	if err != nil {
		t.Fatalf("FinishRecording failed: %v", err)
	}
	e.now = e.now.Add(time.Minute)
	return rec
}

func TestFinishRecordingPersists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.record(t, "")

	if rec.Format != recording.FormatM4A {
		t.Errorf("Expected m4a, got %s", rec.Format)
	}
	if rec.DurationMillis <= 0 {
		t.Errorf("Expected positive duration, got %d", rec.DurationMillis)
	}
	if rec.IsFavorite {
		t.Error("New recordings must not be favorites")
	}
	if rec.Size != int64(len("fake aac payload")) {
		t.Errorf("Expected measured size, got %d", rec.Size)
	}
	if !strings.HasPrefix(rec.Title, recording.DefaultTitlePrefix+" ") {
		t.Errorf("Expected default title, got %q", rec.Title)
	}
	if filepath.Dir(rec.Location) != env.files.Dir() {
		t.Errorf("Expected file inside %s, got %s", env.files.Dir(), rec.Location)
	}
	if !strings.HasPrefix(filepath.Base(rec.Location), "recording_") {
		t.Errorf("Unexpected file name: %s", rec.Location)
	}

	all, err := env.store.GetAll(ctx, recording.SortByDate, recording.Descending)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != rec.ID {
		t.Errorf("Expected the saved recording in GetAll, got %+v", all)
	}
	if snap := env.svc.Snapshot(); len(snap.Recordings) != 1 {
		t.Errorf("Expected list refreshed with 1 recording, got %d", len(snap.Recordings))
	}
	if env.svc.RecordingStatus().IsRecording {
		t.Error("Expected capture to be idle after finishing")
	}
}

func TestFinishRecordingRemovesTemporaryCapture(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, "")

	entries, err := os.ReadDir(env.backend.dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected temporary capture file removed, found %d entries", len(entries))
	}
}

func TestFinishRecordingTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.record(t, "Band practice")
	if rec.Title == "Band practice" {
		t.Error("Custom title must be ignored with the timestamp naming convention")
	}

	custom := settings.NamingCustom
	if _, err := env.svc.SaveSettings(ctx, settings.Patch{NamingConvention: &custom}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	rec = env.record(t, "  Band practice ")
	if rec.Title != "Band practice" {
		t.Errorf("Expected custom title, got %q", rec.Title)
	}
	rec = env.record(t, "")
	if !strings.HasPrefix(rec.Title, recording.DefaultTitlePrefix) {
		t.Errorf("Expected default title when none given, got %q", rec.Title)
	}
}

func TestFinishRecordingSaveFailureLeavesNoFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.saveErr = errors.New("disk full")

	env.svc.StartRecording(ctx, recording.QualityLow)
	if _, err := env.svc.FinishRecording(ctx, ""); err == nil {
		t.Fatal("Expected save error")
	}

	placed, err := env.files.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(placed) != 0 {
		t.Errorf("Expected no orphan file, found %v", placed)
	}
	if env.svc.GetLastError() == "" {
		t.Error("Expected last error to be set")
	}
}

func TestFinishRecordingSaveFailureKeepsCapture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.saveErr = errors.New("database is locked")

	if err := env.svc.StartRecording(ctx, recording.QualityHigh); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	_, err := env.svc.FinishRecording(ctx, "")
	if !errors.Is(err, env.store.saveErr) {
		t.Fatalf("Expected save error, got: %v", err)
	}

	capture := filepath.Join(env.backend.dir, "capture-1.m4a")
	data, readErr := os.ReadFile(capture)
	if readErr != nil {
		t.Fatalf("Expected captured audio to survive the failed save: %v", readErr)
	}
	if string(data) != "fake aac payload" {
		t.Errorf("Captured audio changed: %q", data)
	}
	if !strings.Contains(err.Error(), capture) {
		t.Errorf("Expected error to name the kept file, got: %v", err)
	}
	if !strings.Contains(env.svc.GetLastError(), capture) {
		t.Errorf("Expected last error to name the kept file, got: %s", env.svc.GetLastError())
	}
}

func TestFinishWithoutRecording(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.FinishRecording(context.Background(), ""); !errors.Is(err, audio.ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got: %v", err)
	}
}

func TestStartRecordingUsesSavedQuality(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	low := recording.QualityLow
	env.svc.SaveSettings(ctx, settings.Patch{Quality: &low})

	if err := env.svc.StartRecording(ctx, ""); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	rec, err := env.svc.FinishRecording(ctx, "")
	if err != nil {
		t.Fatalf("FinishRecording failed: %v", err)
	}
	if rec.Format != recording.FormatM4A {
		t.Errorf("Expected m4a for low quality, got %s", rec.Format)
	}
}

func TestDeleteRecordingWithMissingFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.record(t, "")

	if err := os.Remove(rec.Location); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := env.svc.DeleteRecording(ctx, rec.ID); err != nil {
		t.Fatalf("Delete should tolerate a missing file, got: %v", err)
	}
	if _, ok, _ := env.store.Get(ctx, rec.ID); ok {
		t.Error("Expected metadata row removed")
	}
	if len(env.svc.Snapshot().Recordings) != 0 {
		t.Error("Expected list refreshed after delete")
	}
}

func TestDeleteUnknownRecording(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.DeleteRecording(context.Background(), "missing"); err != nil {
		t.Errorf("Deleting an unknown id should not fail, got: %v", err)
	}
}

func TestDeleteUnloadsPlayer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.record(t, "")
	other := env.record(t, "")

	if _, err := env.svc.PlayRecording(ctx, other.ID); err != nil {
		t.Fatalf("PlayRecording failed: %v", err)
	}
	env.svc.DeleteRecording(ctx, rec.ID)
	if env.player.unloads != 0 {
		t.Error("Deleting a different recording must not unload the player")
	}

	env.svc.DeleteRecording(ctx, other.ID)
	if env.player.unloads != 1 || env.player.location != "" {
		t.Errorf("Expected player unloaded once, got %d unloads", env.player.unloads)
	}
}

func TestDeleteRecordingRowFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.record(t, "")
	env.store.deleteErr = errors.New("database is locked")

	err := env.svc.DeleteRecording(ctx, rec.ID)
	if err == nil {
		t.Fatal("Expected partial delete to be reported")
	}
	if !strings.Contains(err.Error(), "metadata remains") {
		t.Errorf("Expected error to say the row remains, got: %v", err)
	}
}

func TestDeleteRecordings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.record(t, "")
	b := env.record(t, "")
	c := env.record(t, "")
	os.Remove(b.Location)

	deleted, err := env.svc.DeleteRecordings(ctx, []string{a.ID, b.ID, "missing"})
	if err != nil {
		t.Fatalf("DeleteRecordings failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	snap := env.svc.Snapshot()
	if len(snap.Recordings) != 1 || snap.Recordings[0].ID != c.ID {
		t.Errorf("Expected only %s left, got %+v", c.ID, snap.Recordings)
	}
	if _, err := os.Stat(a.Location); !os.IsNotExist(err) {
		t.Error("Expected file of first recording removed")
	}
}

func TestPurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.record(t, "")
	env.now = env.now.AddDate(0, 0, 40)
	fresh := env.record(t, "")

	if n, err := env.svc.PurgeExpired(ctx); err != nil || n != 0 {
		t.Fatalf("Expected nothing purged while auto-delete is off, got %d, %v", n, err)
	}

	on, days := true, 30
	env.svc.SaveSettings(ctx, settings.Patch{AutoDelete: &on, AutoDeleteDays: &days})

	n, err := env.svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 purged, got %d", n)
	}
	if _, ok, _ := env.store.Get(ctx, old.ID); ok {
		t.Error("Expected old recording purged")
	}
	if _, ok, _ := env.store.Get(ctx, fresh.ID); !ok {
		t.Error("Expected fresh recording kept")
	}
}

func TestRefreshFailureKeepsList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.record(t, "")
	env.record(t, "")

	env.store.getAllErr = errors.New("database is locked")
	if err := env.svc.SortRecordings(ctx, recording.SortBySize, recording.Ascending); err == nil {
		t.Fatal("Expected refresh error")
	}

	snap := env.svc.Snapshot()
	if len(snap.Recordings) != 2 {
		t.Errorf("Expected previous list kept, got %d recordings", len(snap.Recordings))
	}
	if snap.Error == "" || snap.IsLoading {
		t.Errorf("Expected error flag without loading, got %+v", snap)
	}

	env.store.getAllErr = nil
	if err := env.svc.SortRecordings(ctx, recording.SortBySize, recording.Ascending); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if snap := env.svc.Snapshot(); snap.Error != "" || snap.SortBy != recording.SortBySize {
		t.Errorf("Expected error cleared and sort applied, got %+v", snap)
	}
}

func TestSearchRecordings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	custom := settings.NamingCustom
	env.svc.SaveSettings(ctx, settings.Patch{NamingConvention: &custom})
	env.record(t, "Guitar riff")
	env.record(t, "Voice memo")

	if err := env.svc.SearchRecordings(ctx, "riff"); err != nil {
		t.Fatalf("SearchRecordings failed: %v", err)
	}
	snap := env.svc.Snapshot()
	if len(snap.Recordings) != 1 || snap.Recordings[0].Title != "Guitar riff" || snap.Query != "riff" {
		t.Errorf("Unexpected search snapshot: %+v", snap)
	}

	env.svc.SearchRecordings(ctx, "")
	if len(env.svc.Snapshot().Recordings) != 2 {
		t.Error("Expected full list after clearing the query")
	}
}

func TestSubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var first, second int
	unsubscribe := env.svc.Subscribe(func(Snapshot) { first++ })
	env.svc.Subscribe(func(Snapshot) { second++ })

	env.record(t, "")
	if first != 1 || second != 1 {
		t.Errorf("Expected both subscribers notified once, got %d and %d", first, second)
	}

	unsubscribe()
	env.svc.SearchRecordings(ctx, "x")
	if first != 1 || second != 2 {
		t.Errorf("Expected only the remaining subscriber notified, got %d and %d", first, second)
	}
}

func TestOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.record(t, "")

	stray := filepath.Join(env.files.Dir(), "recording_1.m4a")
	if err := os.WriteFile(stray, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	orphans, err := env.svc.Orphans(ctx)
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != stray {
		t.Errorf("Expected %s as the only orphan, got %v", stray, orphans)
	}

	n, err := env.svc.RemoveOrphans(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Expected 1 orphan removed, got %d, %v", n, err)
	}
	if len(env.svc.Snapshot().Recordings) != 1 {
		t.Error("Removing orphans must not touch stored recordings")
	}
}

func TestExportRecording(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.record(t, "")

	dst, err := env.svc.ExportRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ExportRecording failed: %v", err)
	}
	if filepath.Base(dst) != filepath.Base(rec.Location) {
		t.Errorf("Unexpected export path: %s", dst)
	}
	if _, err := env.svc.ExportRecording(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestUpdateRecordingRefreshes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.record(t, "")

	fav := true
	if err := env.svc.UpdateRecording(ctx, recording.Update{ID: rec.ID, IsFavorite: &fav}); err != nil {
		t.Fatalf("UpdateRecording failed: %v", err)
	}
	if snap := env.svc.Snapshot(); !snap.Recordings[0].IsFavorite {
		t.Error("Expected refreshed list to show the favorite")
	}
	favs, err := env.svc.Favorites(ctx)
	if err != nil || len(favs) != 1 {
		t.Errorf("Expected one favorite, got %d, %v", len(favs), err)
	}
}
