package features

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/m3rciful/evabot/core/logger"
)

// Severity grades a risky clause.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Analysis sources.
const (
	SourceAI        = "ai"
	SourceHeuristic = "heuristic"
)

const maxPromptRunes = 12000

// Document is an uploaded contract. Text is empty for formats that are not
// read inline.
type Document struct {
	Name string
	MIME string
	Text string
}

// Risk is one row of the risk table.
type Risk struct {
	Clause     string `json:"clause"`
	Risk       string `json:"risk"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion"`
}

// Analysis is the outcome of a contract review.
type Analysis struct {
	DocName    string    `json:"doc_name"`
	Summary    string    `json:"summary"`
	Risks      []Risk    `json:"risks"`
	Source     string    `json:"source"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

const analysisPrompt = `Ты юрист, проверяющий договоры по праву РФ. Найди условия, рискованные для клиента.
Ответь только JSON без пояснений:
{"summary":"краткий вывод","risks":[{"clause":"пункт или тема","risk":"в чём риск","severity":"high|medium|low","suggestion":"как переформулировать"}]}`

// AnalyzeContract builds a risk table for doc and stores it as risk_table
// and contract_analysis. Model failures fall back to the keyword scan.
func (s *Suite) AnalyzeContract(ctx context.Context, userID int64, doc Document) (Analysis, error) {
	start := time.Now()
	a, err := s.analyzeWithAI(ctx, doc)
	if err != nil {
		logger.Warn(ctx, logger.CompConversation, "analysis.fallback",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
	if err != nil || s.ai == nil {
		a = heuristicAnalysis(doc)
	}
	a.DocName = doc.Name
	a.AnalyzedAt = s.now()

	if err := s.links.Put(ctx, userID, KeyRiskTable, a.Risks); err != nil {
		return a, err
	}
	if err := s.links.Put(ctx, userID, KeyContractAnalysis, a); err != nil {
		return a, err
	}
	logger.Info(ctx, logger.CompConversation, "analysis",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("source", a.Source),
		slog.Int("risks", len(a.Risks)),
		slog.Duration("took", logger.Took(start)),
	)
	return a, nil
}

func (s *Suite) analyzeWithAI(ctx context.Context, doc Document) (Analysis, error) {
	if s.ai == nil {
		return Analysis{}, nil
	}
	if strings.TrimSpace(doc.Text) == "" {
		return Analysis{}, fmt.Errorf("features: no text extracted from %q", doc.Name)
	}
	out, err := s.ai.Complete(ctx, analysisPrompt, truncateRunes(doc.Text, maxPromptRunes))
	if err != nil {
		return Analysis{}, err
	}
	var parsed struct {
		Summary string `json:"summary"`
		Risks   []Risk `json:"risks"`
	}
	if err := sonic.UnmarshalString(extractJSON(out), &parsed); err != nil {
		return Analysis{}, fmt.Errorf("features: decode analysis: %w", err)
	}
	for i := range parsed.Risks {
		parsed.Risks[i].Severity = normalizeSeverity(parsed.Risks[i].Severity)
	}
	return Analysis{Summary: parsed.Summary, Risks: parsed.Risks, Source: SourceAI}, nil
}

// extractJSON drops code fences and prose around the first JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh, "высокий":
		return SeverityHigh
	case SeverityLow, "низкий":
		return SeverityLow
	}
	return SeverityMedium
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type clauseRule struct {
	stems []string
	risk  Risk
}

var clauseRules = []clauseRule{
	{[]string{"неустойк", "пени"}, Risk{
		Clause: "Неустойка", Severity: SeverityHigh,
		Risk:       "Размер неустойки может быть несоразмерен последствиям нарушения",
		Suggestion: "Ограничить неустойку 0,1% в день и 10% от суммы договора",
	}},
	{[]string{"штраф"}, Risk{
		Clause: "Штрафы", Severity: SeverityMedium,
		Risk:       "Фиксированные штрафы без привязки к убыткам",
		Suggestion: "Сделать штрафы взаимными и указать закрытый перечень нарушений",
	}},
	{[]string{"односторонн"}, Risk{
		Clause: "Односторонний отказ", Severity: SeverityHigh,
		Risk:       "Контрагент вправе отказаться от договора без компенсации",
		Suggestion: "Предусмотреть срок уведомления и возмещение понесённых расходов",
	}},
	{[]string{"предоплат", "аванс"}, Risk{
		Clause: "Предоплата", Severity: SeverityMedium,
		Risk:       "Предоплата без гарантий возврата",
		Suggestion: "Добавить срок возврата аванса при неисполнении",
	}},
	{[]string{"ответственност"}, Risk{
		Clause: "Ограничение ответственности", Severity: SeverityMedium,
		Risk:       "Ответственность сторон распределена неравномерно",
		Suggestion: "Установить симметричные лимиты ответственности",
	}},
	{[]string{"подсудн", "арбитраж"}, Risk{
		Clause: "Подсудность", Severity: SeverityLow,
		Risk:       "Споры рассматриваются по месту нахождения контрагента",
		Suggestion: "Указать арбитражный суд по месту нахождения истца",
	}},
	{[]string{"конфиденциальн"}, Risk{
		Clause: "Конфиденциальность", Severity: SeverityLow,
		Risk:       "Бессрочные обязательства о неразглашении",
		Suggestion: "Ограничить срок конфиденциальности тремя годами",
	}},
	{[]string{"пролонгац", "автоматически продлева"}, Risk{
		Clause: "Автопролонгация", Severity: SeverityLow,
		Risk:       "Договор продлевается без явного согласия",
		Suggestion: "Предусмотреть уведомление о продлении за 30 дней",
	}},
}

// heuristicAnalysis flags clauses by keyword. Without text every rule is
// returned as a checklist item.
func heuristicAnalysis(doc Document) Analysis {
	text := strings.ToLower(doc.Text)
	a := Analysis{Source: SourceHeuristic}
	if strings.TrimSpace(text) == "" {
		for _, rule := range clauseRules {
			a.Risks = append(a.Risks, rule.risk)
		}
		a.Summary = "Текст файла не удалось прочитать автоматически. Проверьте условия по списку."
		return a
	}
	for _, rule := range clauseRules {
		for _, stem := range rule.stems {
			if strings.Contains(text, stem) {
				a.Risks = append(a.Risks, rule.risk)
				break
			}
		}
	}
	if len(a.Risks) == 0 {
		a.Summary = "Явно рискованных условий не найдено."
	} else {
		a.Summary = fmt.Sprintf("Найдено условий, требующих внимания: %d.", len(a.Risks))
	}
	return a
}

var severityMarks = map[string]string{
	SeverityHigh:   "🔴",
	SeverityMedium: "🟡",
	SeverityLow:    "🟢",
}

// Render formats the analysis as the result text.
func (a Analysis) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Документ: %s\n%s", a.DocName, a.Summary)
	for i, r := range a.Risks {
		fmt.Fprintf(&b, "\n\n%d. %s %s\n%s", i+1, severityMarks[r.Severity], r.Clause, r.Risk)
	}
	return b.String()
}

// Redline renders suggested edits from the stored risk table.
func (s *Suite) Redline(ctx context.Context, userID int64) (string, bool, error) {
	var risks []Risk
	ok, err := s.links.Get(ctx, userID, KeyRiskTable, &risks)
	if err != nil || !ok {
		return "", false, err
	}
	if len(risks) == 0 {
		return "Правки не требуются.", true, nil
	}
	var b strings.Builder
	for i, r := range risks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\nБыло: %s\nПредлагаем: %s", i+1, r.Clause, r.Risk, r.Suggestion)
	}
	return b.String(), true, nil
}

// Protocol renders a disagreement protocol from the stored risk table.
func (s *Suite) Protocol(ctx context.Context, userID int64) (string, bool, error) {
	var risks []Risk
	ok, err := s.links.Get(ctx, userID, KeyRiskTable, &risks)
	if err != nil || !ok {
		return "", false, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ПРОТОКОЛ РАЗНОГЛАСИЙ от %s", s.now().Format("02.01.2006"))
	if len(risks) == 0 {
		b.WriteString("\n\nРазногласий нет.")
		return b.String(), true, nil
	}
	for i, r := range risks {
		fmt.Fprintf(&b, "\n\n%d. %s\nРедакция контрагента: %s\nРедакция заказчика: %s", i+1, r.Clause, r.Risk, r.Suggestion)
	}
	return b.String(), true, nil
}
