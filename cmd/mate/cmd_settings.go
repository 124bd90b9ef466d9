package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskmate/internal/api"
	"deskmate/internal/usage"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change assistant settings",
	Long: `View and change the account settings the assistant uses.

Available subcommands:
  get - Show current settings
  set - Change a setting`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show current settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change one setting. Keys:
  company   - company name
  industry  - industry
  language  - assistant language
  tone      - assistant tone (formal, friendly, concise)
  email     - email notifications (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func printSettings(s *api.Settings) {
	fmt.Printf("company:   %s\n", s.CompanyName)
	fmt.Printf("industry:  %s\n", s.Industry)
	fmt.Printf("language:  %s\n", s.Language)
	fmt.Printf("tone:      %s\n", s.AssistantTone)
	fmt.Printf("email:     %v\n", s.EmailNotifications)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()
	settings, err := client.GetSettings(context.Background())
	record(t, usage.Event{Operation: "settings", Failed: err != nil})
	if err != nil {
		return err
	}

	printSettings(settings)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	client, _, err := newClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	settings, err := client.GetSettings(ctx)
	if err != nil {
		return err
	}

	switch key {
	case "company":
		settings.CompanyName = value
	case "industry":
		settings.Industry = value
	case "language":
		settings.Language = value
	case "tone":
		settings.AssistantTone = value
	case "email":
		settings.EmailNotifications = value == "true"
	default:
		return fmt.Errorf("unknown setting %q", key)
	}

	updated, err := client.UpdateSettings(ctx, settings)
	record(tracker(), usage.Event{Operation: "settings", Failed: err != nil})
	if err != nil {
		return err
	}

	zlog().Info("setting updated", zap.String("key", key))
	printSettings(updated)
	return nil
}
