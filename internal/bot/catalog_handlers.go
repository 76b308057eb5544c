package bot

import (
	"context"
	"errors"

	"github.com/hanko-field/storebot/internal/conversation"
	"github.com/hanko-field/storebot/internal/services"
)

// showCatalog lists categories. Navigating back to the catalog supersedes any pending dialogue.
func (b *Bot) showCatalog(ctx context.Context, s *session, _ string) error {
	if err := b.states.Clear(ctx, s.chatID); err != nil {
		return err
	}
	screen, err := b.navigator.EnterCatalog(ctx)
	if errors.Is(err, services.ErrNavigatorEmpty) {
		return b.notify(ctx, s, textNoCategories)
	}
	if err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, textChooseCategory, catalogKeyboard(screen))
}

func (b *Bot) chooseCategory(ctx context.Context, s *session, categoryID string) error {
	screen, err := b.navigator.ChooseCategory(ctx, categoryID)
	switch {
	case errors.Is(err, services.ErrNavigatorEmpty):
		return b.notify(ctx, s, textNoSubcategories)
	case errors.Is(err, services.ErrNavigatorNotFound):
		return b.notify(ctx, s, textProductUnavailable)
	case err != nil:
		return err
	}
	return b.render.Show(ctx, s.target, textChooseSubcategory, catalogKeyboard(screen))
}

func (b *Bot) chooseSubcategory(ctx context.Context, s *session, subcategoryID string) error {
	screen, err := b.navigator.ChooseSubcategory(ctx, subcategoryID)
	switch {
	case errors.Is(err, services.ErrNavigatorEmpty):
		return b.notify(ctx, s, textEmptySubcategory)
	case errors.Is(err, services.ErrNavigatorNotFound):
		return b.notify(ctx, s, textProductUnavailable)
	case err != nil:
		return err
	}
	if err := b.states.Save(ctx, s.chatID, screen.Browsing); err != nil {
		return err
	}
	return b.render.ShowProduct(ctx, s.target, screen)
}

func (b *Bot) nextProduct(ctx context.Context, s *session, _ string) error {
	return b.moveProduct(ctx, s, b.navigator.Next)
}

func (b *Bot) prevProduct(ctx context.Context, s *session, _ string) error {
	return b.moveProduct(ctx, s, b.navigator.Prev)
}

func (b *Bot) moveProduct(ctx context.Context, s *session, move func(context.Context, conversation.Browsing) (services.ProductScreen, error)) error {
	state, err := b.states.Load(ctx, s.chatID)
	if err != nil {
		return err
	}
	browsing, ok := conversation.BrowsingOf(state)
	if !ok || len(browsing.ProductIDs) == 0 {
		return b.notify(ctx, s, textNoProductList)
	}
	screen, err := move(ctx, browsing)
	if errors.Is(err, services.ErrNavigatorNotFound) {
		if err := b.states.Clear(ctx, s.chatID); err != nil {
			return err
		}
		return b.notify(ctx, s, textProductUnavailable)
	}
	if err != nil {
		return err
	}
	// Moving abandons a quantity prompt for the previous product.
	if err := b.states.Save(ctx, s.chatID, screen.Browsing); err != nil {
		return err
	}
	return b.render.ShowProduct(ctx, s.target, screen)
}

func (b *Bot) backToSubcategory(ctx context.Context, s *session, subcategoryID string) error {
	screen, err := b.navigator.BackToSubcategories(ctx, subcategoryID)
	switch {
	case errors.Is(err, services.ErrNavigatorNotFound):
		return b.showCatalog(ctx, s, "")
	case errors.Is(err, services.ErrNavigatorEmpty):
		return b.notify(ctx, s, textNoSubcategories)
	case err != nil:
		return err
	}
	return b.render.Show(ctx, s.target, textChooseSubcategory, catalogKeyboard(screen))
}
