package bot

import (
	"context"
	"errors"
	"io"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/requestctx"
	"github.com/hanko-field/storebot/internal/platform/storage"
	"github.com/hanko-field/storebot/internal/services"
)

// Client is the subset of the Bot API used for rendering. *tgbotapi.BotAPI satisfies it.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ImageResolver opens product image references.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (storage.Image, error)
}

// Target is the message a screen replaces. A zero MessageID always sends a new message.
type Target struct {
	ChatID    int64
	MessageID int
	Photo     bool
}

func targetOf(msg *tgbotapi.Message) Target {
	if msg == nil || msg.Chat == nil {
		return Target{}
	}
	return Target{ChatID: msg.Chat.ID, MessageID: msg.MessageID, Photo: len(msg.Photo) > 0}
}

// Renderer edits screens in place and falls back to delete and resend when Telegram rejects the edit.
type Renderer struct {
	client Client
	media  ImageResolver
}

var _ services.MessageSender = (*Renderer)(nil)

// NewRenderer constructs a renderer. A nil media resolver renders every product without a photo.
func NewRenderer(client Client, media ImageResolver) *Renderer {
	return &Renderer{client: client, media: media}
}

// Show renders a text screen over target.
func (r *Renderer) Show(ctx context.Context, target Target, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	if target.MessageID != 0 && !target.Photo {
		edit := tgbotapi.NewEditMessageText(target.ChatID, target.MessageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.ReplyMarkup = keyboard
		_, err := r.client.Send(edit)
		if err == nil || isNotModified(err) {
			return nil
		}
		requestctx.Logger(ctx).Debug("bot.edit_failed", zap.Int("messageID", target.MessageID), zap.Error(err))
	}
	r.discard(ctx, target)
	return r.sendText(target.ChatID, text, keyboard)
}

// ShowProduct renders a product card over target, with its photo when one can be resolved.
func (r *Renderer) ShowProduct(ctx context.Context, target Target, screen services.ProductScreen) error {
	keyboard := productKeyboard(screen)
	file, ok := r.photo(ctx, screen)
	if !ok {
		return r.Show(ctx, target, productText(screen.Product), keyboard)
	}

	caption := productCaption(screen.Product)
	if target.MessageID != 0 && target.Photo {
		media := tgbotapi.NewInputMediaPhoto(file)
		media.Caption = caption
		media.ParseMode = tgbotapi.ModeHTML
		edit := tgbotapi.EditMessageMediaConfig{
			BaseEdit: tgbotapi.BaseEdit{
				ChatID:      target.ChatID,
				MessageID:   target.MessageID,
				ReplyMarkup: keyboard,
			},
			Media: media,
		}
		_, err := r.client.Send(edit)
		if err == nil || isNotModified(err) {
			return nil
		}
		requestctx.Logger(ctx).Debug("bot.edit_media_failed", zap.Int("messageID", target.MessageID), zap.Error(err))
	}
	r.discard(ctx, target)

	photo := tgbotapi.NewPhoto(target.ChatID, file)
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = keyboard
	_, err := r.client.Send(photo)
	return err
}

// Send posts a new message below the conversation.
func (r *Renderer) Send(_ context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	return r.sendText(chatID, text, keyboard)
}

// SendHTML delivers a broadcast message.
func (r *Renderer) SendHTML(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.sendText(chatID, text, nil)
}

// SendDocument uploads a file from disk with a caption.
func (r *Renderer) SendDocument(_ context.Context, chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	_, err := r.client.Send(doc)
	return err
}

// Answer acknowledges a callback query, optionally with an alert.
func (r *Renderer) Answer(_ context.Context, callbackID, text string, alert bool) error {
	answer := tgbotapi.NewCallback(callbackID, text)
	answer.ShowAlert = alert && text != ""
	_, err := r.client.Request(answer)
	return err
}

// AnswerInline publishes inline query results.
func (r *Renderer) AnswerInline(_ context.Context, queryID string, results []any, cacheTime int) error {
	_, err := r.client.Request(tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     cacheTime,
		IsPersonal:    false,
	})
	return err
}

func (r *Renderer) sendText(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	_, err := r.client.Send(msg)
	return err
}

// discard deletes the target message. Failures are logged only, the screen is resent regardless.
func (r *Renderer) discard(ctx context.Context, target Target) {
	if target.MessageID == 0 {
		return
	}
	if _, err := r.client.Request(tgbotapi.NewDeleteMessage(target.ChatID, target.MessageID)); err != nil {
		requestctx.Logger(ctx).Debug("bot.delete_failed", zap.Int("messageID", target.MessageID), zap.Error(err))
	}
}

// photo resolves the product image. Readers are buffered so a failed edit can be retried as a new message.
func (r *Renderer) photo(ctx context.Context, screen services.ProductScreen) (tgbotapi.RequestFileData, bool) {
	if !screen.HasImage || r.media == nil {
		return nil, false
	}
	image, err := r.media.Resolve(ctx, screen.Product.ImageRef)
	if err != nil {
		if !errors.Is(err, storage.ErrImageNotFound) {
			requestctx.Logger(ctx).Warn("bot.image_resolve_failed",
				zap.String("productID", screen.Product.ID), zap.Error(err))
		}
		return nil, false
	}
	switch image.Kind {
	case storage.ImageKindURL:
		return tgbotapi.FileURL(image.URL), true
	case storage.ImageKindReader:
		defer image.Reader.Close()
		data, err := io.ReadAll(image.Reader)
		if err != nil {
			requestctx.Logger(ctx).Warn("bot.image_read_failed",
				zap.String("productID", screen.Product.ID), zap.Error(err))
			return nil, false
		}
		return tgbotapi.FileBytes{Name: image.Name, Bytes: data}, true
	default:
		requestctx.Logger(ctx).Warn("bot.image_kind_unknown", zap.Int("kind", int(image.Kind)))
		return nil, false
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
