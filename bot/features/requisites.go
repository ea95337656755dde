package features

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/evabot/core/dadata"
	"github.com/m3rciful/evabot/core/logger"
)

// Requisites is the counterparty record shared with document features.
type Requisites struct {
	Company    dadata.Company    `json:"company"`
	Assessment dadata.Assessment `json:"assessment"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// CheckCompany looks up inn, scores the counterparty and stores the result
// under company_requisites for the user.
func (s *Suite) CheckCompany(ctx context.Context, userID int64, inn string) (Requisites, error) {
	if s.companies == nil {
		return Requisites{}, fmt.Errorf("features: company lookup is not configured")
	}
	c, err := s.companies.FindByINN(ctx, inn)
	if err != nil {
		return Requisites{}, fmt.Errorf("features: lookup %s: %w", inn, err)
	}
	if !c.Found {
		return Requisites{}, fmt.Errorf("%w: %s", ErrCompanyNotFound, inn)
	}
	now := s.now()
	r := Requisites{Company: c, Assessment: dadata.Assess(c, now), CheckedAt: now}
	if err := s.links.Put(ctx, userID, KeyCompanyRequisites, r); err != nil {
		return r, err
	}
	logger.Info(ctx, logger.CompConversation, "requisites",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("risk", string(r.Assessment.Level)),
		slog.Bool("stub", c.Stub),
	)
	return r, nil
}

// Requisites returns the user's fresh company_requisites, if any.
func (s *Suite) Requisites(ctx context.Context, userID int64) (Requisites, bool, error) {
	var r Requisites
	ok, err := s.links.Get(ctx, userID, KeyCompanyRequisites, &r)
	return r, ok, err
}

var riskTitles = map[dadata.RiskLevel]string{
	dadata.RiskLow:      "🟢 низкий",
	dadata.RiskMedium:   "🟡 средний",
	dadata.RiskHigh:     "🟠 высокий",
	dadata.RiskCritical: "🔴 критический",
}

// Summary is the short card shown after a check.
func (r Requisites) Summary() string {
	c := r.Company
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nИНН %s", c.Name, c.INN)
	if c.KPP != "" {
		fmt.Fprintf(&b, ", КПП %s", c.KPP)
	}
	if c.OGRN != "" {
		fmt.Fprintf(&b, "\nОГРН %s", c.OGRN)
	}
	if c.Address != "" {
		fmt.Fprintf(&b, "\n%s", c.Address)
	}
	fmt.Fprintf(&b, "\nРиск: %s (%d/100)", riskTitles[r.Assessment.Level], r.Assessment.Score)
	if c.Stub {
		b.WriteString("\nДемо-данные: сервис проверки не подключён.")
	}
	return b.String()
}

// Details expands Summary with registry facts and the scoring reasons.
func (r Requisites) Details() string {
	c := r.Company
	var b strings.Builder
	b.WriteString(r.Summary())
	if c.FullName != "" {
		fmt.Fprintf(&b, "\n\nПолное наименование: %s", c.FullName)
	}
	if c.Manager != "" {
		post := c.ManagerPost
		if post == "" {
			post = "Руководитель"
		}
		fmt.Fprintf(&b, "\n%s: %s", post, c.Manager)
	}
	if c.OKVED != "" {
		fmt.Fprintf(&b, "\nОКВЭД: %s", c.OKVED)
	}
	if c.Status != "" {
		fmt.Fprintf(&b, "\nСтатус: %s", c.Status)
	}
	if !c.RegisteredAt.IsZero() {
		fmt.Fprintf(&b, "\nЗарегистрирована: %s", c.RegisteredAt.Format("02.01.2006"))
	}
	if c.EmployeesKnown {
		fmt.Fprintf(&b, "\nСотрудников: %d", c.EmployeeCount)
	}
	if len(r.Assessment.Risks) > 0 {
		b.WriteString("\n\nРиски:")
		for _, risk := range r.Assessment.Risks {
			fmt.Fprintf(&b, "\n• %s", risk)
		}
	}
	if len(r.Assessment.Recommendations) > 0 {
		b.WriteString("\n\nРекомендации:")
		for _, rec := range r.Assessment.Recommendations {
			fmt.Fprintf(&b, "\n• %s", rec)
		}
	}
	return b.String()
}
