package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	inlineCacheSeconds = 300
	helpResultID       = "help"
)

func (b *Bot) showFAQ(ctx context.Context, s *session, _ string) error {
	return b.render.Show(ctx, s.target, textFAQMenu, faqKeyboard(b.faq.Topics(), ""))
}

func (b *Bot) showFAQTopic(ctx context.Context, s *session, topic string) error {
	entry, ok := b.faq.Lookup(topic)
	if !ok {
		return b.notify(ctx, s, textFAQUnknown)
	}
	return b.render.Show(ctx, s.target, faqAnswerText(entry), faqKeyboard(b.faq.Topics(), entry.Topic))
}

// answerInlineQuery offers topics matching the query prefix, or a help article listing
// every topic when nothing matches.
func (b *Bot) answerInlineQuery(ctx context.Context, query *tgbotapi.InlineQuery) error {
	matches := b.faq.Search(query.Query)
	results := make([]any, 0, len(matches))
	for _, entry := range matches {
		article := tgbotapi.NewInlineQueryResultArticleHTML(entry.ResultID(), entry.Title(), faqInlineText(entry))
		article.Description = entry.Description()
		results = append(results, article)
	}
	if len(results) == 0 {
		article := tgbotapi.NewInlineQueryResultArticleHTML(helpResultID, textHelpTitle, helpText(b.faq.Topics()))
		article.Description = textHelpDescription
		results = append(results, article)
	}
	return b.render.AnswerInline(ctx, query.ID, results, inlineCacheSeconds)
}
