package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExportCmd(app *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every order to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			container, release, err := app.container(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			export, err := container.Services.Exports.ExportOrders(ctx)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = export.FileName
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(path, export.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d orders to %s\n", export.Orders, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default orders_<timestamp>.xlsx)")
	return cmd
}
