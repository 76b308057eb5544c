package bot

import (
	"context"
	"errors"

	"github.com/hanko-field/storebot/internal/conversation"
	"github.com/hanko-field/storebot/internal/services"
)

func (b *Bot) addToCart(ctx context.Context, s *session, _ string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, _, err := services.Transition(state, services.DialogueEvent{Kind: services.EventAddToCart})
	if errors.Is(err, services.ErrDialogueStale) {
		return b.notify(ctx, s, textNoProductSelected)
	}
	if err != nil {
		return err
	}
	if err := b.states.Save(ctx, s.chatID, next); err != nil {
		return err
	}
	return b.render.Send(ctx, s.chatID, textAskQuantity, nil)
}

func (b *Bot) confirmAdd(ctx context.Context, s *session, _ string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, effect, err := services.Transition(state, services.DialogueEvent{Kind: services.EventConfirmAdd})
	if saveErr := b.states.Save(ctx, s.chatID, next); saveErr != nil {
		return saveErr
	}
	if errors.Is(err, services.ErrDialogueStale) {
		return b.render.Show(ctx, s.target, textAddStale, nil)
	}
	if err != nil {
		return err
	}

	// Cart lines reference the user row, which may not exist if /start was never sent.
	if _, _, err := b.register(ctx, s); err != nil {
		return err
	}
	err = b.carts.AddOrReplace(ctx, s.userID(), effect.ProductID, effect.Quantity)
	if errors.Is(err, services.ErrCartNotFound) {
		return b.notify(ctx, s, textProductUnavailable)
	}
	if err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textAdded, addedKeyboard())
}

func (b *Bot) cancelAdd(ctx context.Context, s *session, _ string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, _, _ := services.Transition(state, services.DialogueEvent{Kind: services.EventCancelAdd})
	if err := b.states.Save(ctx, s.chatID, next); err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textAddCancelled, nil)
}

func (b *Bot) viewCart(ctx context.Context, s *session, _ string) error {
	items, err := b.carts.List(ctx, s.userID())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return b.render.Show(ctx, s.target, textCartEmpty, toCatalogKeyboard())
	}
	return b.render.Show(ctx, s.target, cartText(items), cartKeyboard(items))
}

func (b *Bot) clearCart(ctx context.Context, s *session, _ string) error {
	if err := b.carts.Clear(ctx, s.userID()); err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textCartCleared, toCatalogKeyboard())
}

func (b *Bot) removeFromCart(ctx context.Context, s *session, productID string) error {
	err := b.carts.Remove(ctx, s.userID(), productID)
	if err != nil && !errors.Is(err, services.ErrCartNotFound) {
		return err
	}
	return b.viewCart(ctx, s, "")
}

// handleText feeds free text to the dialogue. Text outside a dialogue step is ignored.
func (b *Bot) handleText(ctx context.Context, s *session, text string) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	next, effect, err := services.Transition(state, services.DialogueEvent{Kind: services.EventText, Text: text})
	if err != nil && !errors.Is(err, services.ErrCheckoutInvalidInput) && !errors.Is(err, services.ErrCartInvalidInput) {
		return err
	}
	if err := b.states.Save(ctx, s.chatID, next); err != nil {
		return err
	}

	switch effect.Kind {
	case services.EffectRepromptQuantity:
		return b.render.Send(ctx, s.chatID, textBadQuantity, nil)
	case services.EffectConfirmQuantity:
		return b.render.Send(ctx, s.chatID, confirmQuantityText(effect.Quantity), confirmQuantityKeyboard())
	case services.EffectRepromptName:
		return b.render.Send(ctx, s.chatID, textBadName, nil)
	case services.EffectPromptPhone:
		return b.render.Send(ctx, s.chatID, textAskPhone, nil)
	case services.EffectRepromptPhone:
		return b.render.Send(ctx, s.chatID, textBadPhone, nil)
	case services.EffectPromptAddress:
		return b.render.Send(ctx, s.chatID, textAskAddress, nil)
	case services.EffectRepromptAddress:
		return b.render.Send(ctx, s.chatID, textBadAddress, nil)
	case services.EffectShowSummary:
		return b.showSummary(ctx, s, next)
	}
	return nil
}

func (b *Bot) showSummary(ctx context.Context, s *session, state conversation.State) error {
	pending, ok := state.(conversation.AwaitingConfirmation)
	if !ok {
		return nil
	}
	items, err := b.carts.List(ctx, s.userID())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		if err := b.states.Clear(ctx, s.chatID); err != nil {
			return err
		}
		return b.render.Send(ctx, s.chatID, textCheckoutEmpty, toCatalogKeyboard())
	}
	return b.render.Send(ctx, s.chatID, summaryText(pending.Recipient, items), summaryKeyboard(pending.AttemptID))
}
