package cmd

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/audiorec/internal/recording"
	"github.com/audiolibrelab/audiorec/internal/settings"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage recording settings",
	Long: `View and change the recording preferences stored in the library
database: quality, format, auto-delete and the naming convention.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current recording settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		current, err := a.svc.Settings(ctx)
		if err != nil {
			return err
		}
		return printSettings(current)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more recording settings",
	Example: `  audiorec settings set --quality medium
  audiorec settings set --auto-delete --auto-delete-days 14
  audiorec settings set --naming custom`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch settings.Patch
		flags := cmd.Flags()
		changed := false

		if flags.Changed("quality") {
			v, _ := flags.GetString("quality")
			q, err := recording.ParseQuality(v)
			if err != nil {
				return err
			}
			patch.Quality = &q
			changed = true
		}
		if flags.Changed("format") {
			v, _ := flags.GetString("format")
			f, err := recording.ParseFormat(v)
			if err != nil {
				return err
			}
			patch.Format = &f
			changed = true
		}
		if flags.Changed("auto-delete") {
			v, _ := flags.GetBool("auto-delete")
			patch.AutoDelete = &v
			changed = true
		}
		if flags.Changed("auto-delete-days") {
			v, _ := flags.GetInt("auto-delete-days")
			patch.AutoDeleteDays = &v
			changed = true
		}
		if flags.Changed("naming") {
			v, _ := flags.GetString("naming")
			naming := settings.NamingConvention(v)
			patch.NamingConvention = &naming
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to change, see --help for the available settings")
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		saved, err := a.svc.SaveSettings(ctx, patch)
		if err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		return printSettings(saved)
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default recording settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		defaults, err := a.svc.ResetSettings(ctx)
		if err != nil {
			return err
		}
		return printSettings(defaults)
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme [light|dark|auto]",
	Short: "Show or set the theme preference",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var theme settings.Theme
		if len(args) == 1 {
			t, err := settings.ParseTheme(args[0])
			if err != nil {
				return err
			}
			theme = t
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if theme != "" {
			if err := a.svc.SaveTheme(ctx, theme); err != nil {
				return err
			}
		}
		current, err := a.svc.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Println(current)
		return nil
	},
}

func printSettings(s settings.RecordingSettings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func init() {
	settingsSetCmd.Flags().String("quality", "", "low, medium or high")
	settingsSetCmd.Flags().String("format", "", "m4a, mp3 or wav")
	settingsSetCmd.Flags().Bool("auto-delete", false, "delete recordings older than --auto-delete-days (--auto-delete=false to disable)")
	settingsSetCmd.Flags().Int("auto-delete-days", 30, "age in days after which recordings are deleted")
	settingsSetCmd.Flags().String("naming", "", "timestamp or custom")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}
