package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hanko-field/storebot/internal/services"
)

func newSeedCmd(app *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import categories, subcategories and products from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			catalog, err := services.ParseCatalogImport(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			container, release, err := app.container(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			result, err := container.Services.Catalog.Import(ctx, catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d categories, %d subcategories, %d products\n",
				result.Categories, result.Subcategories, result.Products)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "catalog seed file")
	return cmd
}
