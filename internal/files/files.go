package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

const recordingsDirName = "recordings"

// DiskSpace reports total and available bytes of the volume holding path
type DiskSpace interface {
	Usage(path string) (total, available uint64, err error)
}

// Manager owns the recordings directory and the export area
type Manager struct {
	dir       string
	exportDir string
	disk      DiskSpace
	now       func() time.Time
}

// New creates a manager storing recordings under <dataDir>/recordings.
// An empty exportDir defaults to a directory under os.TempDir().
func New(dataDir, exportDir string, disk DiskSpace) *Manager {
	if exportDir == "" {
		exportDir = filepath.Join(os.TempDir(), "audiorec-export")
	}
	if disk == nil {
		disk = StatfsDiskSpace{}
	}
	return &Manager{
		dir:       filepath.Join(dataDir, recordingsDirName),
		exportDir: exportDir,
		disk:      disk,
		now:       time.Now,
	}
}

// Dir is the managed recordings directory
func (m *Manager) Dir() string {
	return m.dir
}

// Init creates the recordings directory if it does not exist
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	slog.Debug("Recordings directory ready", "path", m.dir)
	return nil
}

// NameFor produces recording_<unix millis><ext> for the current time. A name
// already taken in the directory moves on to the next millisecond.
func (m *Manager) NameFor(format recording.Format) string {
	millis := m.now().UnixMilli()
	for {
		name := "recording_" + strconv.FormatInt(millis, 10) + format.Extension()
		if !m.Exists(filepath.Join(m.dir, name)) {
			return name
		}
		millis++
	}
}

// Place copies src into the recordings directory as fileName and returns
// the new location. The source is left in place.
func (m *Manager) Place(src, fileName string) (string, error) {
	if fileName == "" || filepath.Base(fileName) != fileName {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	dst := filepath.Join(m.dir, fileName)
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to place %s: %w", src, err)
	}
	slog.Debug("Recording file placed", "source", src, "destination", dst)
	return dst, nil
}

// Remove deletes the file at location. A missing file is not an error.
func (m *Manager) Remove(location string) error {
	err := os.Remove(location)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", location, err)
	}
	return nil
}

// RemoveMany removes every location and reports the ones that failed
func (m *Manager) RemoveMany(locations []string) (map[string]error, error) {
	failed := make(map[string]error)
	var errs []error
	for _, loc := range locations {
		if err := m.Remove(loc); err != nil {
			failed[loc] = err
			errs = append(errs, err)
		}
	}
	return failed, errors.Join(errs...)
}

// SizeOf returns the file size in bytes, or 0 when it cannot be read
func (m *Manager) SizeOf(location string) int64 {
	info, err := os.Stat(location)
	if err != nil {
		slog.Debug("Could not stat file", "path", location, "error", err)
		return 0
	}
	return info.Size()
}

func (m *Manager) Exists(location string) bool {
	_, err := os.Stat(location)
	return err == nil
}

// ListFiles returns the paths of all regular files in the recordings directory
func (m *Manager) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list recordings directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			paths = append(paths, filepath.Join(m.dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Orphans lists files in the recordings directory not named in known
func (m *Manager) Orphans(known []string) ([]string, error) {
	paths, err := m.ListFiles()
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, len(known))
	for _, loc := range known {
		referenced[filepath.Clean(loc)] = true
	}
	var orphans []string
	for _, p := range paths {
		if !referenced[p] {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}

// StorageInfo reports capacity of the recordings volume. Probe failures
// yield an all-zero result.
func (m *Manager) StorageInfo() recording.StorageInfo {
	total, available, err := m.disk.Usage(m.dir)
	if err != nil {
		slog.Warn("Failed to query disk space", "path", m.dir, "error", err)
		return recording.StorageInfo{}
	}
	return recording.NewStorageInfo(total, available)
}

// ExportCopy copies location into the export area. On failure it returns
// false and logs the cause.
func (m *Manager) ExportCopy(location string) (string, bool) {
	if err := os.MkdirAll(m.exportDir, 0755); err != nil {
		slog.Error("Failed to create export directory", "path", m.exportDir, "error", err)
		return "", false
	}
	dst := filepath.Join(m.exportDir, filepath.Base(location))
	if err := copyFile(location, dst); err != nil {
		slog.Error("Failed to export recording", "source", location, "error", err)
		return "", false
	}
	return dst, true
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
