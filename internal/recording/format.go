package recording

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// LowStorageThreshold marks storage as low when less than this many bytes are free
const LowStorageThreshold = 100 * 1024 * 1024

// StorageInfo describes the capacity of the volume holding the recordings
type StorageInfo struct {
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
	Total     uint64 `json:"total"`
	IsLow     bool   `json:"isLow"`
}

// NewStorageInfo derives Used and IsLow from total and available bytes
func NewStorageInfo(total, available uint64) StorageInfo {
	info := StorageInfo{Total: total, Available: available}
	if total > available {
		info.Used = total - available
	}
	info.IsLow = available < LowStorageThreshold
	return info
}

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with 1024-based units, e.g. "1.5 KB"
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	const unit = 1024
	exp, div := 0, int64(1)
	for bytes/div >= unit && exp < len(byteUnits)-1 {
		div *= unit
		exp++
	}
	value := float64(bytes) / float64(div)
	return strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64) + " " + byteUnits[exp]
}

// FormatDuration renders milliseconds as m:ss, or h:mm:ss past an hour
func FormatDuration(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	d := time.Duration(millis) * time.Millisecond
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
