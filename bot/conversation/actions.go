package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/evabot/bot/features"
	"github.com/m3rciful/evabot/bot/workflow"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

const notifyOff = "off"

func (s *Service) actionTable() map[state.Action]actionFunc {
	table := map[state.Action]actionFunc{
		workflow.ActionBack:    s.goBack,
		workflow.ActionRestart: s.restart,

		workflow.ActionRedline:        s.redline,
		workflow.ActionProtocol:       s.protocol,
		workflow.ActionDetailedInfo:   s.detailed,
		workflow.ActionSupplyContract: s.template(features.TemplateSupply, workflow.EverestSupply),
		workflow.ActionSpecification:  s.template(features.TemplateSpecification, workflow.EverestSpec),
		workflow.ActionGenerate:       s.generateFromWizard,
		workflow.ActionToggleNotify:   s.toggleNotifications,
	}
	for _, a := range s.graph.AllActions() {
		if _, ok := table[a]; ok {
			continue
		}
		if j, ok := workflow.JumpFor(a); ok {
			table[a] = jump(s.machine, j)
		}
	}
	return table
}

func jump(m *state.Machine, j workflow.Jump) actionFunc {
	return func(ctx context.Context, userID int64, _ state.Description) (string, error) {
		return "", m.Transition(ctx, userID, j.To, j.Data.Clone())
	}
}

func (s *Service) goBack(ctx context.Context, userID int64, _ state.Description) (string, error) {
	return "", s.back(ctx, userID)
}

// back returns to the previous non-transient state.
func (s *Service) back(ctx context.Context, userID int64) error {
	for {
		st, err := s.machine.GoBack(ctx, userID)
		if err != nil || !workflow.Transient(st) {
			return err
		}
	}
}

func (s *Service) restart(ctx context.Context, userID int64, _ state.Description) (string, error) {
	if err := s.machine.Reset(ctx, userID); err != nil {
		return "", err
	}
	return "", s.machine.Transition(ctx, userID, workflow.MainMenu, nil)
}

func (s *Service) redline(ctx context.Context, userID int64, _ state.Description) (string, error) {
	text, ok, err := s.suite.Redline(ctx, userID)
	if err != nil || !ok {
		return msgStale, err
	}
	return "", s.machine.Transition(ctx, userID, workflow.DocumentRedline, state.Data{workflow.KeyResult: text})
}

func (s *Service) protocol(ctx context.Context, userID int64, _ state.Description) (string, error) {
	text, ok, err := s.suite.Protocol(ctx, userID)
	if err != nil || !ok {
		return msgStale, err
	}
	return "", s.machine.Transition(ctx, userID, workflow.DocumentProtocol, state.Data{workflow.KeyResult: text})
}

func (s *Service) detailed(ctx context.Context, userID int64, _ state.Description) (string, error) {
	r, ok, err := s.suite.Requisites(ctx, userID)
	if err != nil || !ok {
		return msgStale, err
	}
	return "", s.machine.Transition(ctx, userID, workflow.INNDetailed, state.Data{workflow.KeyResult: r.Details()})
}

func (s *Service) template(name string, to state.State) actionFunc {
	return func(ctx context.Context, userID int64, _ state.Description) (string, error) {
		doc, err := s.suite.Generate(ctx, userID, name, nil)
		if err != nil {
			return s.fail(ctx, userID, err)
		}
		return "", s.machine.Transition(ctx, userID, to, state.Data{
			workflow.KeyResult: doc.Render(),
			workflow.KeyDocID:  doc.ID,
		})
	}
}

// partyExtras are wizard fields that belong to the counterparty block.
var partyExtras = []string{"kpp", "ogrn", "manager"}

func (s *Service) generateFromWizard(ctx context.Context, userID int64, desc state.Description) (string, error) {
	params := workflow.ParseFields(desc.Data[workflow.KeyPartyExtra])
	for _, k := range partyExtras {
		if v, ok := params[k]; ok {
			params["party_"+k] = v
			delete(params, k)
		}
	}
	for _, k := range []string{workflow.KeyPartyName, workflow.KeyPartyINN, workflow.KeyPartyAddress} {
		if v := desc.Data[k]; v != "" {
			params[k] = v
		}
	}
	tpl := desc.Data[workflow.KeyContractType]
	if tpl == "" {
		tpl = workflow.ContractSupply
	}
	return s.generate(ctx, userID, tpl, params, nil)
}

// generate runs a template through doc_generating into doc_ready.
func (s *Service) generate(ctx context.Context, userID int64, tpl string, params map[string]string, data state.Data) (string, error) {
	if err := s.machine.Transition(ctx, userID, workflow.DocGenerating, data); err != nil {
		return "", err
	}
	doc, err := s.suite.Generate(ctx, userID, tpl, params)
	if err != nil {
		return s.fail(ctx, userID, err)
	}
	return "", s.machine.Transition(ctx, userID, workflow.DocReady, state.Data{
		workflow.KeyResult: doc.Render(),
		workflow.KeyDocID:  doc.ID,
	})
}

func (s *Service) toggleNotifications(ctx context.Context, userID int64, desc state.Description) (string, error) {
	next, notice := notifyOff, msgNotifyOff
	if desc.Data[workflow.KeyNotify] == notifyOff {
		next, notice = "on", msgNotifyOn
	}
	return notice, s.machine.Transition(ctx, userID, workflow.SettingsMenu, state.Data{workflow.KeyNotify: next})
}

// fail moves the user out of a transient state into the error state after a
// feature failure.
func (s *Service) fail(ctx context.Context, userID int64, cause error) (string, error) {
	if errors.Is(cause, context.Canceled) {
		return "", cause
	}
	logger.Warn(ctx, logger.CompConversation, "feature.failed",
		slog.String("status", "fail"),
		slog.String("state", string(s.machine.GetState(ctx, userID))),
		slog.String("err", cause.Error()),
	)
	if err := s.machine.Transition(ctx, userID, workflow.Error, nil); err != nil {
		return "", errors.Join(cause, err)
	}
	return msgServiceDown, nil
}
