package dadata

import "time"

// Registry statuses reported by DaData.
const (
	StatusActive       = "ACTIVE"
	StatusLiquidating  = "LIQUIDATING"
	StatusLiquidated   = "LIQUIDATED"
	StatusReorganizing = "REORGANIZING"
	StatusBankrupt     = "BANKRUPT"
)

// RiskLevel grades a counterparty.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Assessment is a coarse score from 0 to 100 with the reasons behind it.
type Assessment struct {
	Level           RiskLevel `json:"level"`
	Score           int       `json:"score"`
	Risks           []string  `json:"risks"`
	Recommendations []string  `json:"recommendations"`
}

// Assess scores c from registry facts only.
func Assess(c Company, now time.Time) Assessment {
	if !c.Found {
		return Assessment{
			Level:           RiskCritical,
			Risks:           []string{"Организация не найдена в реестре"},
			Recommendations: []string{"Проверьте правильность ИНН", "Сотрудничество не рекомендуется"},
		}
	}

	a := Assessment{Score: 100}
	add := func(penalty int, risk, rec string) {
		a.Score -= penalty
		a.Risks = append(a.Risks, risk)
		a.Recommendations = append(a.Recommendations, rec)
	}

	switch {
	case !c.LiquidatedAt.IsZero() || c.Status == StatusLiquidated:
		add(100, "Организация ликвидирована", "Сотрудничество невозможно")
	case c.Status == StatusLiquidating || c.Status == StatusBankrupt:
		add(80, "Организация в процессе ликвидации или банкротства", "Высокий риск сотрудничества")
	case c.Status == StatusReorganizing:
		add(30, "Организация в процессе реорганизации", "Требуется дополнительная проверка")
	}
	if !c.RegisteredAt.IsZero() && c.RegisteredAt.After(now.AddDate(0, -6, 0)) {
		add(20, "Компания зарегистрирована менее 6 месяцев назад", "Повышенное внимание к проверке")
	}
	if c.EmployeesKnown && c.EmployeeCount < 5 {
		add(10, "Малое количество сотрудников", "Проверьте реальную деятельность компании")
	}

	if a.Score < 0 {
		a.Score = 0
	}
	switch {
	case a.Score >= 80:
		a.Level = RiskLow
	case a.Score >= 60:
		a.Level = RiskMedium
	case a.Score >= 30:
		a.Level = RiskHigh
	default:
		a.Level = RiskCritical
	}
	if len(a.Risks) == 0 {
		a.Risks = []string{"Серьёзных рисков не выявлено"}
		a.Recommendations = []string{"Организация выглядит надёжной"}
	}
	return a
}
