package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/audiorec/internal/play"
	"github.com/audiolibrelab/audiorec/internal/recording"

	"github.com/spf13/cobra"
)

const timelineWidth = 40

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Play a recording",
	Long: `Play a recording through ffplay until it ends or Ctrl+C.

While playing, type a command and press Enter:
  (empty)  pause or resume
  f        skip forward 10s
  b        skip back 10s
  F / B    skip 30s
  s        stop and rewind`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speed, _ := cmd.Flags().GetFloat64("speed")
		loop, _ := cmd.Flags().GetBool("loop")
		from, _ := cmd.Flags().GetDuration("from")

		if !play.IsSupportedSpeed(speed) {
			return fmt.Errorf("%w: %v (supported: %v)", play.ErrUnsupportedRate, speed, play.Speeds)
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		finished := make(chan struct{}, 1)
		a.player.SetStatusObserver(func(st play.Status) {
			fmt.Fprintf(os.Stderr, "\r%s %s / %s",
				renderTimeline(st.PositionMillis, st.DurationMillis, timelineWidth),
				recording.FormatDuration(st.PositionMillis),
				recording.FormatDuration(st.DurationMillis))
			if st.DidJustFinish {
				select {
				case finished <- struct{}{}:
				default:
				}
			}
		})
		defer a.player.SetStatusObserver(nil)

		rec, err := a.svc.PlayRecording(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load recording: %w", err)
		}
		if speed != 1.0 {
			if err := a.player.SetRate(ctx, speed); err != nil {
				return err
			}
		}
		if loop {
			if err := a.player.SetLooping(ctx, true); err != nil {
				return err
			}
		}
		if from > 0 {
			if err := a.player.SeekTo(ctx, from.Milliseconds()); err != nil {
				return err
			}
		}
		if err := a.player.Play(ctx); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Println(titleStyle.Render("▶ " + rec.Title))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- strings.TrimSpace(scanner.Text())
			}
		}()

		for {
			select {
			case <-sigChan:
				fmt.Fprintln(os.Stderr)
				return nil
			case <-finished:
				if !loop {
					fmt.Fprintln(os.Stderr)
					return nil
				}
			case line := <-lines:
				if err := handlePlaybackCommand(ctx, a.player, line); err != nil {
					slog.Error("Playback command failed", "command", line, "error", err)
				}
			}
		}
	},
}

func handlePlaybackCommand(ctx context.Context, p *play.Player, line string) error {
	switch line {
	case "":
		if p.State(ctx).IsPlaying {
			return p.Pause(ctx)
		}
		return p.Play(ctx)
	case "f":
		return p.SkipForward(ctx, play.SkipShort)
	case "b":
		return p.SkipBackward(ctx, play.SkipShort)
	case "F":
		return p.SkipForward(ctx, play.SkipLong)
	case "B":
		return p.SkipBackward(ctx, play.SkipLong)
	case "s":
		return p.Stop(ctx)
	default:
		return fmt.Errorf("unknown command %q", line)
	}
}

func init() {
	playCmd.Flags().Float64("speed", 1.0, "playback speed: 0.5, 0.75, 1, 1.25, 1.5, 2")
	playCmd.Flags().Bool("loop", false, "repeat until interrupted")
	playCmd.Flags().Duration("from", 0, "start position (e.g. 1m30s)")
}
