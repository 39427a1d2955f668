package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/audiorec/internal/recording"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"info"},
	Short:   "Show every field of one recording",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.svc.GetRecording(ctx, args[0])
		if err != nil {
			return err
		}
		printRecording(rec)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals over the whole library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.svc.Statistics(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute statistics: %w", err)
		}
		categories, err := a.svc.Categories(ctx)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}

		fmt.Println(titleStyle.Render("Library"))
		fmt.Printf("recordings: %d\n", stats.TotalRecordings)
		fmt.Printf("duration:   %s\n", recording.FormatDuration(stats.TotalDurationMillis))
		fmt.Printf("size:       %s\n", recording.FormatBytes(stats.TotalSize))
		if len(categories) > 0 {
			fmt.Printf("categories: %s\n", strings.Join(categories, ", "))
		}
		return nil
	},
}

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Show free space on the recordings volume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		info := a.svc.StorageInfo()
		fmt.Println(titleStyle.Render("Storage"))
		fmt.Printf("directory: %s\n", cfg.Storage.DataDirectory)
		fmt.Printf("total:     %s\n", recording.FormatBytes(int64(info.Total)))
		fmt.Printf("used:      %s\n", recording.FormatBytes(int64(info.Used)))
		fmt.Printf("available: %s\n", recording.FormatBytes(int64(info.Available)))
		if info.IsLow {
			fmt.Println(recordingStyle.Render("⚠ Storage is running low"))
		}
		return nil
	},
}

func printRecording(rec *recording.Recording) {
	fmt.Println(titleStyle.Render(rec.Title))
	fmt.Printf("id:       %s\n", rec.ID)
	fmt.Printf("created:  %s\n", formatCreated(*rec))
	fmt.Printf("duration: %s\n", recording.FormatDuration(rec.DurationMillis))
	fmt.Printf("size:     %s\n", recording.FormatBytes(rec.Size))
	fmt.Printf("format:   %s\n", rec.Format)
	fmt.Printf("file:     %s\n", rec.Location)
	if rec.Category != nil {
		fmt.Printf("category: %s\n", *rec.Category)
	}
	if len(rec.Tags) > 0 {
		fmt.Printf("tags:     %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Notes != nil {
		fmt.Printf("notes:    %s\n", *rec.Notes)
	}
	if rec.IsFavorite {
		fmt.Println(successStyle.Render("★ favorite"))
	}
}
