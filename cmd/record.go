package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/audiorec/internal/audio"
	"github.com/audiolibrelab/audiorec/internal/recording"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the default input device",
	Long: `Record audio from the configured input device until Ctrl+C, then save
the clip to the library. Press Enter to pause or resume.

The encoder preset follows the quality setting (or --quality). The title is
generated from the finish time unless the naming convention is "custom" and
--title is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		qualityFlag, _ := cmd.Flags().GetString("quality")
		title, _ := cmd.Flags().GetString("title")
		maxDuration, _ := cmd.Flags().GetDuration("duration")

		var quality recording.Quality
		if qualityFlag != "" {
			q, err := recording.ParseQuality(qualityFlag)
			if err != nil {
				return err
			}
			quality = q
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.StartRecording(ctx, quality); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - Press Enter to pause/resume, Ctrl+C to stop and save")

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		enter := make(chan struct{})
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				enter <- struct{}{}
			}
		}()

		ticker := time.NewTicker(cfg.Capture.StatusInterval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-sigChan:
				break loop
			case <-enter:
				togglePause(ctx, a)
			case <-ticker.C:
				st := a.svc.RecordingStatus()
				printRecordingStatus(st)
				if st.LimitReached {
					fmt.Fprintln(os.Stderr)
					slog.Warn("Maximum recording length reached, stopping", "limit", recording.MaxRecordingDuration)
					break loop
				}
				if maxDuration > 0 && time.Duration(st.DurationMillis)*time.Millisecond >= maxDuration {
					break loop
				}
			}
		}
		fmt.Fprintln(os.Stderr)

		slog.Info("Stopping recording...")
		rec, err := a.svc.FinishRecording(ctx, title)
		if err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}

		fmt.Println(successStyle.Render("✔ Saved"), rec.Title)
		fmt.Printf("  id:       %s\n", rec.ID)
		fmt.Printf("  duration: %s\n", recording.FormatDuration(rec.DurationMillis))
		fmt.Printf("  size:     %s\n", recording.FormatBytes(rec.Size))
		fmt.Printf("  file:     %s\n", rec.Location)
		return nil
	},
}

func togglePause(ctx context.Context, a *app) {
	var err error
	if a.svc.RecordingStatus().IsPaused {
		err = a.svc.ResumeRecording(ctx)
	} else {
		err = a.svc.PauseRecording(ctx)
	}
	if err != nil {
		slog.Error("Failed to toggle pause", "error", err)
	}
}

// printRecordingStatus rewrites the status line on stderr
func printRecordingStatus(st audio.SessionStatus) {
	elapsed := recording.FormatDuration(st.DurationMillis)
	var state string
	if st.IsPaused {
		state = pausedStyle.Render("❚❚ PAUSED " + elapsed)
	} else {
		state = recordingStyle.Render("● REC " + elapsed)
	}

	meter := renderMeter(-160)
	level := "  -∞ dB"
	if st.Metering != nil {
		meter = renderMeter(st.Metering.Current)
		level = fmt.Sprintf("%6.1f dB (peak %.1f)", st.Metering.Current, st.Metering.Peak)
	}
	fmt.Fprintf(os.Stderr, "\r%s %s %s", state, meter, mutedStyle.Render(level))
}

func init() {
	recordCmd.Flags().StringP("quality", "q", "", "quality preset: low, medium, high (default from settings)")
	recordCmd.Flags().StringP("title", "t", "", "title for the recording (used with the custom naming convention)")
	recordCmd.Flags().Duration("duration", 0, "stop automatically after this long (e.g. 30s, 5m)")
}
