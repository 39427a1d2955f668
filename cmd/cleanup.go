package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired recordings and orphaned files",
	Long: `Delete recordings older than the auto-delete age (when auto-delete is
enabled in settings) and audio files in the data directory that no
recording refers to. With neither flag both are done.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		expired, _ := cmd.Flags().GetBool("expired")
		orphans, _ := cmd.Flags().GetBool("orphans")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if !expired && !orphans {
			expired, orphans = true, true
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if expired && !dryRun {
			n, err := a.svc.PurgeExpired(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete expired recordings: %w", err)
			}
			fmt.Printf("expired recordings deleted: %d\n", n)
		}

		if orphans {
			if dryRun {
				paths, err := a.svc.Orphans(ctx)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Println(p)
				}
				printOrphanSummary(len(paths))
				return nil
			}
			n, err := a.svc.RemoveOrphans(ctx)
			if err != nil {
				return fmt.Errorf("failed to remove orphaned files: %w", err)
			}
			fmt.Printf("orphaned files removed: %d\n", n)
		}
		return nil
	},
}

func printOrphanSummary(count int) {
	if count == 0 {
		fmt.Println(mutedStyle.Render("No orphaned files"))
		return
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d orphaned files", count)))
}

func init() {
	cleanupCmd.Flags().Bool("expired", false, "only delete expired recordings")
	cleanupCmd.Flags().Bool("orphans", false, "only remove orphaned files")
	cleanupCmd.Flags().Bool("dry-run", false, "list orphaned files without removing anything")
}
