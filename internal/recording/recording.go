package recording

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalid is returned when a value fails validation
var ErrInvalid = errors.New("invalid recording data")

const (
	// TimestampLayout is the ISO-8601 form used for CreatedAt (UTC, millisecond precision)
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	// DefaultTitlePrefix is prepended to the capture time for generated titles
	DefaultTitlePrefix = "Recording"

	titleTimeLayout = "Jan 02, 2006 15:04"

	// MaxRecordingDuration caps a single capture session
	MaxRecordingDuration = 4 * time.Hour
)

// Recording is one stored clip: a metadata row paired with an audio file
type Recording struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Location       string   `json:"uri"`
	DurationMillis int64    `json:"duration"`
	Size           int64    `json:"size"`
	CreatedAt      string   `json:"createdAt"`
	Format         Format   `json:"format"`
	Category       *string  `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
	IsFavorite     bool     `json:"isFavorite"`
}

// Validate checks the invariants every stored recording must hold
func (r *Recording) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if r.DurationMillis < 0 {
		return fmt.Errorf("%w: duration must be non-negative, got %d", ErrInvalid, r.DurationMillis)
	}
	if r.Size < 0 {
		return fmt.Errorf("%w: size must be non-negative, got %d", ErrInvalid, r.Size)
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	return nil
}

// CreatedTime parses CreatedAt. A malformed timestamp yields the zero time.
func (r *Recording) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Update is a partial update keyed by ID. Nil fields are left untouched.
type Update struct {
	ID         string    `json:"id"`
	Title      *string   `json:"title,omitempty"`
	Category   *string   `json:"category,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	IsFavorite *bool     `json:"isFavorite,omitempty"`
}

// IsEmpty reports whether the update carries no field changes
func (u Update) IsEmpty() bool {
	return u.Title == nil && u.Category == nil && u.Tags == nil && u.Notes == nil && u.IsFavorite == nil
}

// Apply copies the present fields of u onto r
func (u Update) Apply(r *Recording) {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Category != nil {
		c := *u.Category
		r.Category = &c
	}
	if u.Tags != nil {
		r.Tags = append([]string(nil), (*u.Tags)...)
	}
	if u.Notes != nil {
		n := *u.Notes
		r.Notes = &n
	}
	if u.IsFavorite != nil {
		r.IsFavorite = *u.IsFavorite
	}
}

// Format is the audio container of a stored recording
type Format string

const (
	FormatM4A Format = "m4a"
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatM4A, FormatMP3, FormatWAV:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (must be m4a, mp3 or wav)", ErrInvalid, s)
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// FormatForLocation derives the format from a file name's extension
func FormatForLocation(location string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(location), "."))
}

// Quality selects one of the fixed encoder presets
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", fmt.Errorf("%w: unknown quality %q (must be low, medium or high)", ErrInvalid, s)
}

// SortOption names the column a listing is ordered by
type SortOption string

const (
	SortByDate     SortOption = "date"
	SortByName     SortOption = "name"
	SortByDuration SortOption = "duration"
	SortBySize     SortOption = "size"
)

func ParseSortOption(s string) (SortOption, error) {
	switch o := SortOption(strings.ToLower(strings.TrimSpace(s))); o {
	case SortByDate, SortByName, SortByDuration, SortBySize:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown sort option %q", ErrInvalid, s)
}

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case Ascending, Descending:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown sort order %q", ErrInvalid, s)
}

// Statistics aggregates over every stored recording
type Statistics struct {
	TotalRecordings     int64 `json:"totalRecordings"`
	TotalDurationMillis int64 `json:"totalDuration"`
	TotalSize           int64 `json:"totalSize"`
}

// Timestamp renders t the way CreatedAt is stored
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DefaultTitle builds the generated title for a capture finished at t
func DefaultTitle(t time.Time) string {
	return DefaultTitlePrefix + " " + t.Format(titleTimeLayout)
}
