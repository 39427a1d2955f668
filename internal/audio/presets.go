package audio

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

// Platform selects the platform-specific encoder identifiers
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// PlatformFor maps a GOOS value onto the encoder platform it behaves like
func PlatformFor(goos string) Platform {
	switch goos {
	case "darwin", "ios":
		return PlatformIOS
	case "js", "wasip1":
		return PlatformWeb
	default:
		return PlatformAndroid
	}
}

// ParsePlatform accepts android, ios, web or auto (detect from the host)
func ParsePlatform(s string) (Platform, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "", "auto":
		return PlatformFor(runtime.GOOS), nil
	case string(PlatformAndroid), string(PlatformIOS), string(PlatformWeb):
		return Platform(p), nil
	}
	return "", fmt.Errorf("unknown platform %q (must be auto, android, ios or web)", s)
}

// EncoderConfig is the full set of capture options for one quality tier
type EncoderConfig struct {
	Extension  string `json:"extension"`
	Container  string `json:"container"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	BitRate    int    `json:"bitRate"`

	// iOS only
	AudioQuality         string `json:"audioQuality,omitempty"`
	LinearPCMBitDepth    int    `json:"linearPCMBitDepth,omitempty"`
	LinearPCMIsBigEndian bool   `json:"linearPCMIsBigEndian,omitempty"`
	LinearPCMIsFloat     bool   `json:"linearPCMIsFloat,omitempty"`
}

type preset struct {
	sampleRate int
	channels   int
	bitRate    int
	iosQuality string
}

var presets = map[recording.Quality]preset{
	recording.QualityLow:    {sampleRate: 22050, channels: 1, bitRate: 64000, iosQuality: "LOW"},
	recording.QualityMedium: {sampleRate: 44100, channels: 1, bitRate: 96000, iosQuality: "MEDIUM"},
	recording.QualityHigh:   {sampleRate: 44100, channels: 2, bitRate: 128000, iosQuality: "HIGH"},
}

// Presets returns the encoder configuration for a quality tier on a platform
func Presets(quality recording.Quality, platform Platform) (EncoderConfig, error) {
	p, ok := presets[quality]
	if !ok {
		return EncoderConfig{}, fmt.Errorf("%w: unknown quality %q", recording.ErrInvalid, quality)
	}

	cfg := EncoderConfig{
		SampleRate: p.sampleRate,
		Channels:   p.channels,
		BitRate:    p.bitRate,
	}

	switch platform {
	case PlatformAndroid:
		cfg.Extension = ".m4a"
		cfg.Container = "mpeg4"
		cfg.Codec = "aac"
	case PlatformIOS:
		cfg.Extension = ".m4a"
		cfg.Container = "mpeg4"
		cfg.Codec = "aac"
		cfg.AudioQuality = p.iosQuality
		cfg.LinearPCMBitDepth = 16
	case PlatformWeb:
		cfg.Extension = ".webm"
		cfg.Container = "webm"
		cfg.Codec = "opus"
	default:
		return EncoderConfig{}, fmt.Errorf("unknown platform %q", platform)
	}
	return cfg, nil
}
