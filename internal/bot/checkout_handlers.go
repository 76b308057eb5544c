package bot

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/requestctx"
	"github.com/hanko-field/storebot/internal/services"
)

func (b *Bot) previewCheckout(ctx context.Context, s *session, _ string) error {
	items, err := b.checkout.Preview(ctx, s.userID())
	if errors.Is(err, services.ErrCheckoutEmptyCart) {
		return b.notify(ctx, s, textCheckoutEmpty)
	}
	if err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, previewText(items), previewKeyboard())
}

// startCheckout opens a dialogue with a fresh attempt id. The id rides on the final confirm
// button so repeated presses of that button reach the same attempt.
func (b *Bot) startCheckout(ctx context.Context, s *session, _ string) error {
	empty, err := b.carts.IsEmpty(ctx, s.userID())
	if err != nil {
		return err
	}
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, _, err := services.Transition(state, services.DialogueEvent{
		Kind:      services.EventStartCheckout,
		AttemptID: b.newID(),
		CartEmpty: empty,
	})
	if errors.Is(err, services.ErrCheckoutEmptyCart) {
		return b.notify(ctx, s, textCheckoutEmpty)
	}
	if err != nil {
		return err
	}
	if err := b.states.Save(ctx, s.chatID, next); err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textAskName, nil)
}

func (b *Bot) completeOrder(ctx context.Context, s *session, attemptID string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	_, effect, err := services.Transition(state, services.DialogueEvent{Kind: services.EventConfirm, AttemptID: attemptID})
	if errors.Is(err, services.ErrDialogueStale) {
		return b.notify(ctx, s, textCheckoutStale)
	}
	if err != nil {
		return err
	}

	cmd := services.ConfirmCheckoutCommand{ChatID: s.chatID, UserID: s.userID(), AttemptID: effect.AttemptID}
	if effect.Kind == services.EffectPlaceOrder {
		cmd.Recipient = effect.Recipient
	}
	result, err := b.checkout.Confirm(ctx, cmd)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		// The dialogue stays at confirmation so the same button can retry.
		requestctx.Logger(ctx).Warn("bot.payment_failed", zap.String("orderID", result.Order.ID))
		return b.render.Send(ctx, s.chatID, textPaymentFailed, summaryKeyboard(effect.AttemptID))
	case errors.Is(err, services.ErrCheckoutInProgress):
		return b.notify(ctx, s, textCheckoutInProgress)
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		if err := b.states.Clear(ctx, s.chatID); err != nil {
			return err
		}
		return b.notify(ctx, s, textCheckoutEmpty)
	case errors.Is(err, services.ErrDialogueStale), errors.Is(err, services.ErrCheckoutInvalidInput):
		if err := b.states.Clear(ctx, s.chatID); err != nil {
			return err
		}
		return b.notify(ctx, s, textCheckoutStale)
	default:
		return err
	}

	if err := b.states.Clear(ctx, s.chatID); err != nil {
		return err
	}
	if err := b.render.Show(ctx, s.target, orderCreatedText(result.Order), paymentKeyboard(result.PaymentURL)); err != nil {
		return err
	}
	if result.Paid && !result.Replayed {
		return b.render.Send(ctx, s.chatID, orderPaidText(result.Order), toCatalogKeyboard())
	}
	return nil
}

func (b *Bot) cancelOrder(ctx context.Context, s *session, _ string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, _, err := services.Transition(state, services.DialogueEvent{Kind: services.EventCancel})
	if errors.Is(err, services.ErrDialogueStale) {
		return b.notify(ctx, s, textCheckoutStale)
	}
	if err != nil {
		return err
	}
	if err := b.states.Save(ctx, s.chatID, next); err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textCheckoutCancelled, cancelledKeyboard())
}
