package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/audiorec/internal/recording"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sortFlag, _ := cmd.Flags().GetString("sort")
		orderFlag, _ := cmd.Flags().GetString("order")
		favorites, _ := cmd.Flags().GetBool("favorites")
		category, _ := cmd.Flags().GetString("category")

		by, err := recording.ParseSortOption(sortFlag)
		if err != nil {
			return err
		}
		order, err := recording.ParseSortOrder(orderFlag)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var recs []recording.Recording
		switch {
		case favorites:
			recs, err = a.svc.Favorites(ctx)
		case category != "":
			recs, err = a.svc.ByCategory(ctx, category)
		default:
			err = a.svc.SortRecordings(ctx, by, order)
			recs = a.svc.Snapshot().Recordings
		}
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		printRecordings(recs)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search titles and notes, newest first",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.SearchRecordings(ctx, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		printRecordings(a.svc.Snapshot().Recordings)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title, category, tags, notes or favorite flag",
	Long: `Change recording metadata. Only the flags given are written; everything
else is left as it is. Pass an empty --tags to clear the tags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd := recording.Update{ID: args[0]}
		flags := cmd.Flags()

		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			upd.Title = &v
		}
		if flags.Changed("category") {
			v, _ := flags.GetString("category")
			upd.Category = &v
		}
		if flags.Changed("tags") {
			v, _ := flags.GetStringSlice("tags")
			tags := make([]string, 0, len(v))
			for _, tag := range v {
				if tag = strings.TrimSpace(tag); tag != "" {
					tags = append(tags, tag)
				}
			}
			upd.Tags = &tags
		}
		if flags.Changed("notes") {
			v, _ := flags.GetString("notes")
			upd.Notes = &v
		}
		if flags.Changed("favorite") {
			v, _ := flags.GetBool("favorite")
			upd.IsFavorite = &v
		}
		if upd.IsEmpty() {
			return fmt.Errorf("nothing to change, pass at least one of --title, --category, --tags, --notes, --favorite")
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.svc.GetRecording(ctx, upd.ID); err != nil {
			return err
		}
		if err := a.svc.UpdateRecording(ctx, upd); err != nil {
			return fmt.Errorf("failed to update recording: %w", err)
		}
		rec, err := a.svc.GetRecording(ctx, upd.ID)
		if err != nil {
			return err
		}
		printRecording(rec)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete recordings and their files",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			err = a.svc.DeleteRecording(ctx, args[0])
		} else {
			var deleted int
			deleted, err = a.svc.DeleteRecordings(ctx, args)
			if err == nil && deleted != len(args) {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("%d of %d recordings found", deleted, len(args))))
			}
		}
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Println(successStyle.Render("✔ Deleted"), strings.Join(args, ", "))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Copy a recording's file to the export directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.svc.ExportRecording(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func printRecordings(recs []recording.Recording) {
	if len(recs) > 0 {
		fmt.Println(recordingsTable(recs))
	}
	printSummary(len(recs))
}

func init() {
	listCmd.Flags().String("sort", string(recording.SortByDate), "sort by: date, name, duration, size")
	listCmd.Flags().String("order", string(recording.Descending), "sort order: asc, desc")
	listCmd.Flags().Bool("favorites", false, "only favorites")
	listCmd.Flags().String("category", "", "only recordings in this category")

	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("category", "", "category")
	editCmd.Flags().StringSlice("tags", nil, "comma separated tags, replaces the current tags")
	editCmd.Flags().String("notes", "", "free-form notes")
	editCmd.Flags().Bool("favorite", false, "mark or unmark as favorite (--favorite=false)")
}
