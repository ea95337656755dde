package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

func (s *Service) inputTable() map[state.State]inputFunc {
	return map[state.State]inputFunc{
		workflow.DocumentUpload:     s.analyzeDocument,
		workflow.INNInput:           s.checkINN,
		workflow.EverestWizardStep2: s.companyData,
		workflow.DocParamsInput:     s.documentParams,
		workflow.LegalQuestion:      s.legalQuestion,
	}
}

func (s *Service) analyzeDocument(ctx context.Context, ev Event, _ state.Description, name string) (string, error) {
	doc := ev.Document
	if doc.Size > s.maxDocument {
		return msgTooLarge, nil
	}
	if err := s.machine.Transition(ctx, ev.UserID, workflow.DocumentAnalyzing, state.Data{
		workflow.KeyDocName: name,
		workflow.KeyDocMIME: doc.MIME,
	}); err != nil {
		return "", err
	}
	a, err := s.suite.AnalyzeContract(ctx, ev.UserID, features.Document{
		Name: name,
		MIME: doc.MIME,
		Text: s.readText(ctx, doc),
	})
	if err != nil {
		return s.fail(ctx, ev.UserID, err)
	}
	return "", s.machine.Transition(ctx, ev.UserID, workflow.DocumentResults, state.Data{workflow.KeyResult: a.Render()})
}

var textExts = map[string]bool{".txt": true, ".md": true}

// readText returns the document body for plain-text uploads. Other formats
// and read failures yield an empty string.
func (s *Service) readText(ctx context.Context, doc *DocumentInput) string {
	mediaType, _, _ := mime.ParseMediaType(doc.MIME)
	if !strings.HasPrefix(mediaType, "text/") && !textExts[strings.ToLower(filepath.Ext(doc.Name))] {
		return ""
	}
	if doc.Open == nil {
		return ""
	}
	rc, err := doc.Open(ctx)
	if err != nil {
		logger.Warn(ctx, logger.CompConversation, "document.open",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return ""
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxInlineText))
	if err != nil || !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

func (s *Service) checkINN(ctx context.Context, ev Event, _ state.Description, inn string) (string, error) {
	if err := s.machine.Transition(ctx, ev.UserID, workflow.INNProcessing, state.Data{workflow.KeyINN: inn}); err != nil {
		return "", err
	}
	r, err := s.suite.CheckCompany(ctx, ev.UserID, inn)
	switch {
	case errors.Is(err, features.ErrCompanyNotFound):
		return fmt.Sprintf(msgCompanyAbsent, inn), s.machine.Transition(ctx, ev.UserID, workflow.INNInput, nil)
	case err != nil:
		return s.fail(ctx, ev.UserID, err)
	}
	return "", s.machine.Transition(ctx, ev.UserID, workflow.INNResults, state.Data{workflow.KeyResult: r.Summary()})
}

func (s *Service) companyData(ctx context.Context, ev Event, _ state.Description, normalized string) (string, error) {
	fields := workflow.ParseFields(normalized)
	data := state.Data{
		workflow.KeyPartyName:    fields["name"],
		workflow.KeyPartyINN:     fields["inn"],
		workflow.KeyPartyAddress: fields["address"],
	}
	extra := maps.Clone(fields)
	delete(extra, "name")
	delete(extra, "inn")
	delete(extra, "address")
	data[workflow.KeyPartyExtra] = workflow.FormatFields(extra)
	return "", s.machine.Transition(ctx, ev.UserID, workflow.EverestWizardStep3, data)
}

func (s *Service) documentParams(ctx context.Context, ev Event, desc state.Description, normalized string) (string, error) {
	tpl := desc.Data[workflow.KeyDocType]
	return s.generate(ctx, ev.UserID, tpl, workflow.ParseFields(normalized), state.Data{workflow.KeyParams: normalized})
}

func (s *Service) legalQuestion(ctx context.Context, ev Event, desc state.Description, question string) (string, error) {
	if err := s.machine.Transition(ctx, ev.UserID, workflow.LegalProcessing, state.Data{workflow.KeyQuestion: question}); err != nil {
		return "", err
	}
	answer, err := s.suite.AnswerLegal(ctx, desc.Data[workflow.KeyCategory], question)
	if err != nil {
		return s.fail(ctx, ev.UserID, err)
	}
	return "", s.machine.Transition(ctx, ev.UserID, workflow.LegalResponse, state.Data{workflow.KeyResult: answer})
}
