// Package mic probes the host input devices through PortAudio.
package mic

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// InputDevice is a capture-capable device reported by PortAudio
type InputDevice struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	HostAPI           string  `json:"host_api" yaml:"host_api"`
	Channels          int     `json:"channels" yaml:"channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	IsDefault         bool    `json:"is_default" yaml:"is_default"`
}

// Probe treats the microphone as usable when PortAudio
// exposes a default input device with at least one channel
type Probe struct{}

func (Probe) MicrophoneGranted() (bool, error) {
	if err := portaudio.Initialize(); err != nil {
		return false, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Debug("Error terminating PortAudio", "error", err)
		}
	}()

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		slog.Debug("No default input device", "error", err)
		return false, nil
	}
	return dev.MaxInputChannels > 0, nil
}

// ListInputDevices enumerates input devices across all host APIs
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Debug("Error terminating PortAudio", "error", err)
		}
	}()

	hostApis, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("failed to list host APIs: %w", err)
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	var devices []InputDevice
	for _, host := range hostApis {
		for _, dev := range host.Devices {
			if dev.MaxInputChannels == 0 {
				continue
			}
			devices = append(devices, InputDevice{
				Index:             dev.Index,
				Name:              dev.Name,
				HostAPI:           host.Name,
				Channels:          dev.MaxInputChannels,
				DefaultSampleRate: dev.DefaultSampleRate,
				IsDefault:         defaultInput != nil && dev.Index == defaultInput.Index,
			})
		}
	}
	return devices, nil
}
