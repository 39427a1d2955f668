package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/audiorec/internal/audio"
)

const EnvPrefix = "AUDIOREC"

type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type StorageConfig struct {
	DataDirectory   string `mapstructure:"data_directory" yaml:"data_directory"`
	Database        string `mapstructure:"database" yaml:"database"` // file name inside data_directory, or an absolute path
	ExportDirectory string `mapstructure:"export_directory" yaml:"export_directory"`
}

type CaptureConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	InputFormat     string        `mapstructure:"input_format" yaml:"input_format"` // ffmpeg -f value: pulse, alsa, avfoundation, dshow
	InputDevice     string        `mapstructure:"input_device" yaml:"input_device"`
	Platform        string        `mapstructure:"platform" yaml:"platform"` // "auto", "android", "ios"
	CheckMicrophone bool          `mapstructure:"check_microphone" yaml:"check_microphone"`
	TempDirectory   string        `mapstructure:"temp_directory" yaml:"temp_directory"`
	StatusInterval  time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
}

type PlaybackConfig struct {
	FFplayPath     string        `mapstructure:"ffplay_path" yaml:"ffplay_path"`
	FFprobePath    string        `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	StatusInterval time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultPath is where the config file lives when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/audiorec.yaml")
}

func setDefaults(v *viper.Viper) {
	inputFormat, inputDevice := audio.DefaultInput(runtime.GOOS)

	v.SetDefault("storage.data_directory", "~/.local/share/audiorec")
	v.SetDefault("storage.database", "recordings.db")
	v.SetDefault("storage.export_directory", "")

	v.SetDefault("capture.ffmpeg_path", "ffmpeg")
	v.SetDefault("capture.input_format", inputFormat)
	v.SetDefault("capture.input_device", inputDevice)
	v.SetDefault("capture.platform", "auto")
	v.SetDefault("capture.check_microphone", true)
	v.SetDefault("capture.temp_directory", "")
	v.SetDefault("capture.status_interval", 100*time.Millisecond)

	v.SetDefault("playback.ffplay_path", "ffplay")
	v.SetDefault("playback.ffprobe_path", "ffprobe")
	v.SetDefault("playback.status_interval", 500*time.Millisecond)

	v.SetDefault("server.port", "8080")
}

// Load reads configFile on top of the defaults. A missing file is not an
// error; AUDIOREC_* environment variables override both.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.DataDirectory = expandPath(cfg.Storage.DataDirectory)
	cfg.Storage.ExportDirectory = expandPath(cfg.Storage.ExportDirectory)
	cfg.Capture.TempDirectory = expandPath(cfg.Capture.TempDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is set
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// DatabasePath resolves the sqlite file location
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Storage.Database) {
		return c.Storage.Database
	}
	return filepath.Join(c.Storage.DataDirectory, c.Storage.Database)
}

// Platform resolves the preset family used for capture
func (c *Config) Platform() audio.Platform {
	p, err := audio.ParsePlatform(c.Capture.Platform)
	if err != nil {
		return audio.PlatformFor(runtime.GOOS)
	}
	return p
}

func (c *Config) Validate() error {
	if err := validateStorage(c.Storage); err != nil {
		return err
	}
	if err := validateCapture(c.Capture); err != nil {
		return err
	}
	if err := validatePlayback(c.Playback); err != nil {
		return err
	}
	return validateServer(c.Server)
}

func validateStorage(s StorageConfig) error {
	if strings.TrimSpace(s.DataDirectory) == "" {
		return fmt.Errorf("storage.data_directory must not be empty")
	}
	if strings.TrimSpace(s.Database) == "" {
		return fmt.Errorf("storage.database must not be empty")
	}
	if !filepath.IsAbs(s.Database) && strings.ContainsRune(s.Database, filepath.Separator) {
		return fmt.Errorf("storage.database must be a file name or an absolute path, got: %s", s.Database)
	}
	return nil
}

func validateCapture(c CaptureConfig) error {
	if c.FFmpegPath == "" {
		return fmt.Errorf("capture.ffmpeg_path must not be empty")
	}
	if c.InputFormat == "" || c.InputDevice == "" {
		return fmt.Errorf("capture.input_format and capture.input_device are required")
	}
	switch c.Platform {
	case "", "auto", string(audio.PlatformAndroid), string(audio.PlatformIOS):
	default:
		// web presets produce webm, which the library cannot store
		return fmt.Errorf("capture.platform must be 'auto', 'android' or 'ios', got: %s", c.Platform)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("capture.status_interval must be positive, got: %s", c.StatusInterval)
	}
	return nil
}

func validatePlayback(p PlaybackConfig) error {
	if p.FFplayPath == "" || p.FFprobePath == "" {
		return fmt.Errorf("playback.ffplay_path and playback.ffprobe_path are required")
	}
	if p.StatusInterval <= 0 {
		return fmt.Errorf("playback.status_interval must be positive, got: %s", p.StatusInterval)
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if !isNumeric(s.Port) {
		return fmt.Errorf("server.port must be numeric, got: %s", s.Port)
	}
	return nil
}

// expandPath resolves a leading "~/" or "~" plus the OS separator
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
