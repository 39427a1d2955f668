package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/audiorec/internal/recording"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrStorageInit is returned when the database cannot be opened or migrated
var ErrStorageInit = errors.New("storage initialization failed")

// recordingRow maps the recordings table. Column names follow the
// persisted schema, which predates this package.
type recordingRow struct {
	ID         string  `gorm:"column:id;primaryKey;type:text"`
	Title      string  `gorm:"column:title;type:text;not null;index:idx_recordings_title"`
	URI        string  `gorm:"column:uri;type:text;not null"`
	Duration   int64   `gorm:"column:duration;type:integer;not null"`
	Size       int64   `gorm:"column:size;type:integer;not null"`
	Created    string  `gorm:"column:createdAt;type:text;not null;index:idx_recordings_createdAt"`
	Format     string  `gorm:"column:format;type:text;not null"`
	Category   *string `gorm:"column:category;type:text"`
	Tags       *string `gorm:"column:tags;type:text"`
	Notes      *string `gorm:"column:notes;type:text"`
	IsFavorite bool    `gorm:"column:isFavorite;type:integer;not null;index:idx_recordings_isFavorite"`
}

func (recordingRow) TableName() string { return "recordings" }

// preferenceRow is a small key/value table for persisted preferences
type preferenceRow struct {
	Key     string `gorm:"column:key;primaryKey;type:text"`
	Value   string `gorm:"column:value;type:text;not null"`
	Updated string `gorm:"column:updatedAt;type:text;not null"`
}

func (preferenceRow) TableName() string { return "preferences" }

var sortColumns = map[recording.SortOption]string{
	recording.SortByDate:     "createdAt",
	recording.SortByName:     "title",
	recording.SortByDuration: "duration",
	recording.SortBySize:     "size",
}

// Store is the metadata index of recordings backed by SQLite
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens (creating if needed) the database file at path.
// With debug set, every SQL statement is logged.
func Open(path string, debug bool) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageInit, err)
	}

	level := logger.Silent
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorageInit, path, err)
	}

	slog.Debug("Metadata store opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Init creates the tables and indexes. It is safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&recordingRow{}, &preferenceRow{}); err != nil {
		return fmt.Errorf("%w: migrate %s: %w", ErrStorageInit, s.path, err)
	}
	return nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save inserts rec or fully replaces the row with the same id
func (s *Store) Save(ctx context.Context, rec *recording.Recording) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save recording %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the recording with the given id. A missing id is reported
// through the boolean, not as an error.
func (s *Store) Get(ctx context.Context, id string) (*recording.Recording, bool, error) {
	var rows []recordingRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, false, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	rec, err := fromRow(&rows[0])
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// GetAll lists every recording ordered by the given column. Rows with equal
// sort keys are ordered by id ascending.
func (s *Store) GetAll(ctx context.Context, sortBy recording.SortOption, order recording.SortOrder) ([]recording.Recording, error) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = sortColumns[recording.SortByDate]
	}

	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: order != recording.Ascending}).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return fromRows(rows)
}

// Search matches q as a substring of title or notes using SQLite LIKE
// (case-insensitive for ASCII). Results are newest first.
func (s *Store) Search(ctx context.Context, q string) ([]recording.Recording, error) {
	pattern := "%" + q + "%"
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("title LIKE ? OR notes LIKE ?", pattern, pattern).
		Order("createdAt DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search recordings: %w", err)
	}
	return fromRows(rows)
}

func (s *Store) GetByCategory(ctx context.Context, category string) ([]recording.Recording, error) {
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("createdAt DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list category %q: %w", category, err)
	}
	return fromRows(rows)
}

func (s *Store) GetFavorites(ctx context.Context) ([]recording.Recording, error) {
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("isFavorite = ?", true).
		Order("createdAt DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return fromRows(rows)
}

// GetCategories returns the distinct non-null categories in ascending order
func (s *Store) GetCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.db.WithContext(ctx).Model(&recordingRow{}).
		Distinct("category").
		Where("category IS NOT NULL").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetOlderThan returns recordings created strictly before cutoff
func (s *Store) GetOlderThan(ctx context.Context, cutoff time.Time) ([]recording.Recording, error) {
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("createdAt < ?", recording.Timestamp(cutoff)).
		Order("createdAt ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return fromRows(rows)
}

// Update writes only the fields present in upd
func (s *Store) Update(ctx context.Context, upd recording.Update) error {
	if upd.IsEmpty() {
		return nil
	}

	fields := make(map[string]interface{})
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.Category != nil {
		fields["category"] = *upd.Category
	}
	if upd.Tags != nil {
		encoded, err := encodeTags(*upd.Tags)
		if err != nil {
			return err
		}
		fields["tags"] = encoded
	}
	if upd.Notes != nil {
		fields["notes"] = *upd.Notes
	}
	if upd.IsFavorite != nil {
		fields["isFavorite"] = *upd.IsFavorite
	}

	err := s.db.WithContext(ctx).Model(&recordingRow{}).Where("id = ?", upd.ID).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update recording %s: %w", upd.ID, err)
	}
	return nil
}

// Delete removes the row with the given id; a missing id is not an error
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&recordingRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete recording %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&recordingRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete %d recordings: %w", len(ids), err)
	}
	return nil
}

// GetStatistics aggregates count, total duration and total size
func (s *Store) GetStatistics(ctx context.Context) (recording.Statistics, error) {
	var result struct {
		Count    int64 `gorm:"column:count"`
		Duration int64 `gorm:"column:duration"`
		Size     int64 `gorm:"column:size"`
	}
	err := s.db.WithContext(ctx).Model(&recordingRow{}).
		Select("COUNT(*) AS count, COALESCE(SUM(duration), 0) AS duration, COALESCE(SUM(size), 0) AS size").
		Scan(&result).Error
	if err != nil {
		return recording.Statistics{}, fmt.Errorf("failed to compute statistics: %w", err)
	}
	return recording.Statistics{
		TotalRecordings:     result.Count,
		TotalDurationMillis: result.Duration,
		TotalSize:           result.Size,
	}, nil
}

// GetItem reads a preference value
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	var rows []preferenceRow
	if err := s.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&rows).Error; err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

// SetItem writes a preference value, replacing any previous one
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	row := preferenceRow{Key: key, Value: value, Updated: recording.Timestamp(time.Now())}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&preferenceRow{}).Error; err != nil {
		return fmt.Errorf("failed to remove preference %s: %w", key, err)
	}
	return nil
}

func toRow(rec *recording.Recording) (*recordingRow, error) {
	row := &recordingRow{
		ID:         rec.ID,
		Title:      rec.Title,
		URI:        rec.Location,
		Duration:   rec.DurationMillis,
		Size:       rec.Size,
		Created:    rec.CreatedAt,
		Format:     string(rec.Format),
		Category:   rec.Category,
		Notes:      rec.Notes,
		IsFavorite: rec.IsFavorite,
	}
	if rec.Tags != nil {
		encoded, err := encodeTags(rec.Tags)
		if err != nil {
			return nil, err
		}
		row.Tags = &encoded
	}
	return row, nil
}

func fromRow(row *recordingRow) (*recording.Recording, error) {
	rec := &recording.Recording{
		ID:             row.ID,
		Title:          row.Title,
		Location:       row.URI,
		DurationMillis: row.Duration,
		Size:           row.Size,
		CreatedAt:      row.Created,
		Format:         recording.Format(row.Format),
		Category:       row.Category,
		Notes:          row.Notes,
		IsFavorite:     row.IsFavorite,
	}
	if row.Tags != nil {
		if err := json.Unmarshal([]byte(*row.Tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("recording %s has malformed tags: %w", row.ID, err)
		}
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
	}
	return rec, nil
}

func fromRows(rows []recordingRow) ([]recording.Recording, error) {
	recs := make([]recording.Recording, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}
