package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hanko-field/storebot/internal/di"
	"github.com/hanko-field/storebot/internal/services"
)

func newBroadcastCmd(app *app) *cobra.Command {
	var (
		title      string
		message    string
		recipients []int64
	)
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a notification to every user and print the delivery result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || message == "" {
				return errors.New("--title and --message are required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			container, release, err := app.container(ctx, []string{"Telegram.Token"}, di.WithTelegram())
			if err != nil {
				return err
			}
			defer release()

			report, err := container.Services.Broadcasts.Send(ctx, services.BroadcastCommand{
				Title:      title,
				Message:    message,
				Recipients: recipients,
			})
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]any{
				"id":        report.Broadcast.ID,
				"sent":      report.Broadcast.Sent,
				"succeeded": report.Result.Succeeded,
				"failed":    report.Result.Failed,
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&message, "message", "", "notification body")
	cmd.Flags().Int64SliceVar(&recipients, "to", nil, "restrict delivery to these Telegram ids")
	return cmd
}
