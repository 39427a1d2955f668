package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/audiorec/internal/mic"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available input devices",
	Long: `List the capture devices PortAudio can see. The device marked as default
is the one probed for microphone access before a recording starts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := mic.ListInputDevices()
		if err != nil {
			return fmt.Errorf("failed to list input devices: %w", err)
		}

		fmt.Printf("🎙 Input Devices (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		if len(devices) == 0 {
			fmt.Println(mutedStyle.Render("No input devices found"))
			return nil
		}
		for _, dev := range devices {
			marker := "  "
			if dev.IsDefault {
				marker = successStyle.Render("* ")
			}
			fmt.Printf("%s%d. %s %s\n", marker, dev.Index, dev.Name,
				mutedStyle.Render(fmt.Sprintf("[%s, %d ch, %.0f Hz]", dev.HostAPI, dev.Channels, dev.DefaultSampleRate)))
		}

		fmt.Printf("\n💡 Capture uses ffmpeg:\n")
		fmt.Printf("  • input format: %s\n", cfg.Capture.InputFormat)
		fmt.Printf("  • input device: %s\n", cfg.Capture.InputDevice)
		fmt.Printf("  • change them with capture.input_format / capture.input_device in the config file\n\n")
		return nil
	},
}
