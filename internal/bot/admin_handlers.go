package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/requestctx"
)

// exportOrders sends the order spreadsheet to an administrator. The file only lives on disk
// for the upload.
func (b *Bot) exportOrders(ctx context.Context, s *session) error {
	if !b.telegram.IsAdmin(s.userID()) {
		requestctx.Logger(ctx).Warn("bot.admin_denied", zap.Int64("userID", s.userID()))
		return b.render.Send(ctx, s.chatID, textAdminOnly, nil)
	}
	if b.exports == nil {
		return errors.New("bot: export service is not configured")
	}

	export, err := b.exports.ExportOrders(ctx)
	if err != nil {
		return err
	}
	dir := b.exportDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bot: create export dir: %w", err)
	}
	path := filepath.Join(dir, export.FileName)
	if err := os.WriteFile(path, export.Data, 0o600); err != nil {
		return fmt.Errorf("bot: write export: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			requestctx.Logger(ctx).Warn("bot.export_cleanup_failed", zap.String("path", path), zap.Error(err))
		}
	}()

	if err := b.render.SendDocument(ctx, s.chatID, path, textExportCaption); err != nil {
		return err
	}
	requestctx.Logger(ctx).Info("bot.orders_exported", zap.Int("orders", export.Orders), zap.String("file", export.FileName))
	return nil
}
