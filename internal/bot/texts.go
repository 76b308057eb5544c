package bot

import (
	"fmt"
	"strings"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/textutil"
	"github.com/hanko-field/storebot/internal/services"
)

const (
	textChooseCategory      = "Выберите категорию:"
	textNoCategories        = "Категорий пока нет."
	textChooseSubcategory   = "Выберите подкатегорию:"
	textNoSubcategories     = "Подкатегорий пока нет."
	textEmptySubcategory    = "В этой подкатегории пока нет товаров."
	textNoProductList       = "Ошибка: список товаров не найден."
	textNoProductSelected   = "Ошибка: товар не выбран. Пожалуйста, попробуйте снова."
	textProductUnavailable  = "Товар недоступен, начните заново"
	textMissingPhoto        = "🖼 [Фото отсутствует]"
	textAskQuantity         = "Введите количество товара:"
	textBadQuantity         = "Пожалуйста, введите корректное положительное число."
	textAddStale            = "Ошибка: товар или количество не указаны. Попробуйте снова."
	textAdded               = "Товар добавлен в корзину."
	textAddCancelled        = "Добавление в корзину отменено. Если хотите выбрать другой товар, нажмите 'Каталог'."
	textCartHeader          = "🛒 Ваша корзина:\n\n"
	textCartEmpty           = "Ваша корзина пуста. Выберите товары в каталоге."
	textCartCleared         = "Корзина очищена!"
	textCheckoutEmpty       = "Корзина пуста!"
	textAskName             = "Пожалуйста, введите ваше ФИО:"
	textBadName             = "ФИО должно содержать не менее 3 символов. Попробуйте еще раз:"
	textAskPhone            = "Введите ваш номер телефона:"
	textBadPhone            = "Пожалуйста, введите корректный номер телефона:"
	textAskAddress          = "Введите адрес доставки:"
	textBadAddress          = "Адрес слишком короткий. Пожалуйста, укажите полный адрес доставки:"
	textCheckoutCancelled   = "❌ Оформление заказа отменено"
	textCheckoutStale       = "Это оформление уже недействительно. Начните заново из корзины."
	textCheckoutInProgress  = "Заказ уже обрабатывается, подождите."
	textPaymentFailed       = "❌ Не удалось создать платёж. Заказ не оплачен.\n\nПопробуйте подтвердить ещё раз или отмените оформление."
	textFAQMenu             = "❓ Выберите интересующую вас тему:"
	textFAQUnknown          = "Тема не найдена."
	textExportCaption       = "Отчет по всем заказам"
	textAdminOnly           = "Команда доступна только администраторам."
	textGenericError        = "Произошла ошибка. Попробуйте позже."
	textHelpTitle           = "Справка по командам"
	textHelpDescription     = "Список всех доступных вопросов"
	textCatalogReplyTrigger = "Каталог"
)

const (
	labelCatalog        = "Каталог"
	labelFAQ            = "FAQ"
	labelCart           = "Корзина"
	labelBack           = "Назад"
	labelFAQBack        = "« Назад"
	labelPrev           = "❮"
	labelNext           = "❯"
	labelAddToCart      = "Добавить в корзину"
	labelConfirmAdd     = "✔️ Да"
	labelCancelAdd      = "❌ Нет"
	labelGoToCart       = "Перейти в корзину"
	labelToCatalog      = "В каталог"
	labelClearCart      = "Очистить корзину"
	labelCheckout       = "Оформить заказ"
	labelConfirm        = "Подтвердить"
	labelCancel         = "Отмена"
	labelCompleteOrder  = "✅ Подтвердить заказ"
	labelCancelOrder    = "❌ Отменить"
	labelPay            = "💳 Перейти к оплате"
	labelBackToCart     = "Вернуться в корзину"
	labelRemoveCartLine = "❌ Удалить %d"
)

func greetingText(firstName string, created bool) string {
	name := textutil.EscapeHTML(firstName)
	if created {
		return fmt.Sprintf("👋 Привет, %s! Вы успешно зарегистрированы.", name)
	}
	return fmt.Sprintf("🔄 С возвращением, %s! Вы уже зарегистрированы.", name)
}

func welcomeBackText(firstName string) string {
	return fmt.Sprintf("🔄 С возвращением, %s!", textutil.EscapeHTML(firstName))
}

func productCaption(product domain.Product) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s",
		textutil.EscapeHTML(product.SubcategoryName),
		textutil.EscapeHTML(product.Description))
}

func productText(product domain.Product) string {
	return textMissingPhoto + "\n\n" + productCaption(product)
}

func confirmQuantityText(quantity int) string {
	return fmt.Sprintf("Добавить %d шт. в корзину?", quantity)
}

func cartText(items []domain.CartItem) string {
	var b strings.Builder
	b.WriteString(textCartHeader)
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n   Количество: %d шт.\n\n",
			i+1, textutil.EscapeHTML(item.Product.Description), item.Line.Quantity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func itemLines(items []domain.CartItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("• %s - %d шт.", textutil.EscapeHTML(item.Product.Description), item.Line.Quantity))
	}
	return strings.Join(lines, "\n")
}

func previewText(items []domain.CartItem) string {
	return "📋 Подтверждение заказа\n\nТовары в заказе:\n" + itemLines(items)
}

func summaryText(recipient domain.Recipient, items []domain.CartItem) string {
	return fmt.Sprintf("📋 Подтвердите данные заказа:\n\n👤 ФИО: %s\n📞 Телефон: %s\n📍 Адрес: %s\n\nТовары:\n%s",
		textutil.EscapeHTML(recipient.FullName),
		textutil.EscapeHTML(recipient.Phone),
		textutil.EscapeHTML(recipient.Address),
		itemLines(items))
}

func orderCreatedText(order domain.Order) string {
	return fmt.Sprintf("🛍 Заказ #%s успешно создан!\n\nНажмите кнопку ниже для оплаты заказа.", order.ID)
}

func orderPaidText(order domain.Order) string {
	return fmt.Sprintf("✅ Заказ #%s успешно оплачен!\n\n"+
		"📦 Статус: Заказ оформлен и оплачен\n"+
		"👤 Получатель: %s\n"+
		"📞 Телефон: %s\n"+
		"📍 Адрес доставки: %s\n\n"+
		"Спасибо за покупку! Мы свяжемся с вами для уточнения деталей доставки.",
		order.ID,
		textutil.EscapeHTML(order.Recipient.FullName),
		textutil.EscapeHTML(order.Recipient.Phone),
		textutil.EscapeHTML(order.Recipient.Address))
}

func faqButtonLabel(entry services.FAQEntry) string {
	return entry.Emoji + " " + entry.Title()
}

func faqAnswerText(entry services.FAQEntry) string {
	return fmt.Sprintf("%s %s\n\n%s", entry.Emoji, textutil.EscapeHTML(entry.Title()), textutil.EscapeHTML(entry.Answer))
}

func faqInlineText(entry services.FAQEntry) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", textutil.EscapeHTML(entry.Title()), textutil.EscapeHTML(entry.Answer))
}

func helpText(entries []services.FAQEntry) string {
	var b strings.Builder
	b.WriteString("❓ Доступные команды справки:")
	for _, entry := range entries {
		b.WriteString("\n• ")
		b.WriteString(textutil.EscapeHTML(entry.Topic))
	}
	return b.String()
}
