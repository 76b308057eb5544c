package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/services"
)

// Callback data values. Parameterised actions use "<action>:<argument>".
const (
	cbShowCatalog       = "show_catalog"
	cbShowFAQ           = "show_faq"
	cbViewCart          = "view_cart"
	cbBackToStart       = "back_to_start"
	cbBackToCategories  = "back_to_categories"
	cbCategory          = "category"
	cbSubcategory       = "subcategory"
	cbBackToSubcategory = "back_to_subcategory"
	cbNextProduct       = "next_product"
	cbPrevProduct       = "prev_product"
	cbAddToCart         = "add_to_cart_product"
	cbConfirmAdd        = "confirm_add"
	cbCancelAdd         = "cancel_add"
	cbClearCart         = "clear_cart"
	cbRemoveFromCart    = "remove_from_cart"
	cbCheckout          = "checkout"
	cbConfirmOrder      = "confirm_order"
	cbCompleteOrder     = "complete_order"
	cbCancelOrder       = "cancel_order"
	cbFAQTopic          = "faq"
	// cbNoop marks buttons that only display information.
	cbNoop              = "noop"
)

func callbackData(action, argument string) string {
	return action + ":" + argument
}

// parseCallback splits data into its action and optional argument.
func parseCallback(data string) (action, argument string) {
	action, argument, _ = strings.Cut(strings.TrimSpace(data), ":")
	return action, argument
}

func button(label, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, data)
}

func markup(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func mainMenuKeyboard(cartEmpty bool) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(button(labelCatalog, cbShowCatalog), button(labelFAQ, cbShowFAQ)),
	}
	if !cartEmpty {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(labelCart, cbViewCart)))
	}
	return markup(rows...)
}

func catalogKeyboard(screen services.CatalogScreen) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(screen.Nodes)+1)
	action := cbCategory
	if screen.Kind == services.CatalogNodeSubcategory {
		action = cbSubcategory
	}
	for _, node := range screen.Nodes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(node.Name, callbackData(action, node.ID))))
	}
	if screen.Kind == services.CatalogNodeSubcategory {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(labelBack, cbBackToCategories)))
	}
	return markup(rows...)
}

func productKeyboard(screen services.ProductScreen) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if screen.Count > 1 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(labelPrev, cbPrevProduct),
			button(fmt.Sprintf("%d/%d", screen.Index+1, screen.Count), cbNoop),
			button(labelNext, cbNextProduct),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button(labelAddToCart, cbAddToCart)),
		tgbotapi.NewInlineKeyboardRow(button(labelBack, callbackData(cbBackToSubcategory, screen.Product.SubcategoryID))),
	)
	return markup(rows...)
}

func confirmQuantityKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(button(labelConfirmAdd, cbConfirmAdd), button(labelCancelAdd, cbCancelAdd)))
}

func addedKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(button(labelGoToCart, cbViewCart), button(labelToCatalog, cbBackToCategories)))
}

func toCatalogKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(button(labelToCatalog, cbShowCatalog)))
}

func cartKeyboard(items []domain.CartItem) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items)+2)
	for i, item := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(fmt.Sprintf(labelRemoveCartLine, i+1), callbackData(cbRemoveFromCart, item.Line.ProductID)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button(labelClearCart, cbClearCart), button(labelCheckout, cbCheckout)),
		tgbotapi.NewInlineKeyboardRow(button(labelToCatalog, cbShowCatalog)),
	)
	return markup(rows...)
}

func previewKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(button(labelConfirm, cbConfirmOrder), button(labelCancel, cbViewCart)))
}

func summaryKeyboard(attemptID string) *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(
		button(labelCompleteOrder, callbackData(cbCompleteOrder, attemptID)),
		button(labelCancelOrder, cbCancelOrder),
	))
}

func paymentKeyboard(paymentURL string) *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(labelPay, paymentURL)))
}

func cancelledKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return markup(tgbotapi.NewInlineKeyboardRow(button(labelBackToCart, cbViewCart)))
}

// faqKeyboard lists every topic except current, which may be empty.
func faqKeyboard(entries []services.FAQEntry, current string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries)+1)
	for _, entry := range entries {
		if entry.Topic == current {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(faqButtonLabel(entry), callbackData(cbFAQTopic, entry.Topic))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(labelFAQBack, cbBackToStart)))
	return markup(rows...)
}
