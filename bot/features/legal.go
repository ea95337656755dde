package features

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/evabot/core/logger"
)

var categoryTitles = map[string]string{
	"contract":  "договорное право",
	"labor":     "трудовое право",
	"corporate": "корпоративное право",
	"other":     "общие вопросы",
}

const legalPrompt = `Ты юрист-консультант по праву РФ, область: %s.
Отвечай кратко и по существу, ссылайся на статьи законов, в конце перечисли шаги, которые стоит предпринять.`

// AnswerLegal answers a legal question. Without a model a static
// recommendation is returned.
func (s *Suite) AnswerLegal(ctx context.Context, category, question string) (string, error) {
	title, ok := categoryTitles[category]
	if !ok {
		title = categoryTitles["other"]
	}
	if s.ai == nil {
		return fmt.Sprintf("Консультант (%s) сейчас работает без ИИ. Сохраните вопрос и обратитесь к юристу: "+
			"подготовьте договор, переписку и документы, подтверждающие ваши доводы.", title), nil
	}
	answer, err := s.ai.Complete(ctx, fmt.Sprintf(legalPrompt, title), question)
	if err != nil {
		logger.Error(ctx, logger.CompConversation, "legal",
			slog.String("status", "fail"),
			slog.String("category", category),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("features: legal answer: %w", err)
	}
	return answer, nil
}
