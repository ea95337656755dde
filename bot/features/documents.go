package features

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"text/template"
	"time"

	"github.com/m3rciful/evabot/core/logger"
)

// Templates.
const (
	TemplateSupply        = "supply"
	TemplateService       = "service"
	TemplateMixed         = "mixed"
	TemplateSpecification = "specification"
	TemplateInvoice       = "invoice"
	TemplateAct           = "act"
	TemplateClaim         = "claim"
)

const blank = "________"

// GeneratedDocument is a rendered template.
type GeneratedDocument struct {
	ID        string    `json:"id"`
	Template  string    `json:"template"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Prefilled bool      `json:"prefilled"`
	CreatedAt time.Time `json:"created_at"`
}

type docTemplate struct {
	title string
	tmpl  *template.Template
}

func mustTemplate(name, title, body string) docTemplate {
	return docTemplate{title: title, tmpl: template.Must(template.New(name).Parse(body))}
}

const partyBlock = `{{.F "party_name"}}, ИНН {{.F "party_inn"}}{{with .Opt "party_kpp"}}, КПП {{.}}{{end}}
Адрес: {{.F "party_address"}}{{with .Opt "party_manager"}}
В лице: {{.}}{{end}}`

var templates = map[string]docTemplate{
	TemplateSupply: mustTemplate(TemplateSupply, "Договор поставки", `ДОГОВОР ПОСТАВКИ № {{.F "number"}}
г. {{.F "city"}}, {{.Date}}

Поставщик: {{.F "supplier"}}
Покупатель: `+partyBlock+`

1. Поставщик обязуется передать, а Покупатель принять и оплатить товар согласно спецификациям.
2. Цена товара указывается в спецификации и включает НДС.
3. Оплата производится в течение {{.Or "payment_days" "10"}} рабочих дней с даты поставки.
4. Ответственность сторон ограничена суммой договора; неустойка 0,1% в день, не более 10%.
5. Споры рассматриваются в арбитражном суде по месту нахождения истца.

Документ № {{.ID}}`),
	TemplateService: mustTemplate(TemplateService, "Договор оказания услуг", `ДОГОВОР ОКАЗАНИЯ УСЛУГ № {{.F "number"}}
{{.Date}}

Исполнитель: {{.F "supplier"}}
Заказчик: `+partyBlock+`

1. Исполнитель оказывает услуги: {{.F "subject"}}.
2. Стоимость услуг: {{.F "amount"}} руб.
3. Приёмка услуг оформляется актом в течение 5 рабочих дней.

Документ № {{.ID}}`),
	TemplateMixed: mustTemplate(TemplateMixed, "Смешанный договор", `ДОГОВОР ПОСТАВКИ И ОКАЗАНИЯ УСЛУГ № {{.F "number"}}
{{.Date}}

Сторона 1: {{.F "supplier"}}
Сторона 2: `+partyBlock+`

1. Стороны согласовали поставку товара и сопутствующие услуги по спецификации.
2. К отношениям применяются правила о поставке и о возмездном оказании услуг.

Документ № {{.ID}}`),
	TemplateSpecification: mustTemplate(TemplateSpecification, "Спецификация", `СПЕЦИФИКАЦИЯ № {{.Or "number" "1"}} к договору поставки
{{.Date}}

Покупатель: `+partyBlock+`

| № | Наименование | Кол-во | Цена |
| 1 | {{.F "item"}} | {{.F "quantity"}} | {{.F "amount"}} |

Срок поставки: {{.Or "delivery" "10 рабочих дней"}}

Документ № {{.ID}}`),
	TemplateInvoice: mustTemplate(TemplateInvoice, "Счёт на оплату", `СЧЁТ НА ОПЛАТУ № {{.F "number"}} от {{.Date}}

Плательщик: `+partyBlock+`

Назначение: {{.F "subject"}}
Сумма: {{.F "amount"}} руб.

Документ № {{.ID}}`),
	TemplateAct: mustTemplate(TemplateAct, "Акт выполненных работ", `АКТ № {{.F "number"}} от {{.Date}}

Заказчик: `+partyBlock+`

Работы ({{.F "subject"}}) выполнены полностью и в срок на сумму {{.F "amount"}} руб.
Заказчик претензий по объёму, качеству и срокам не имеет.

Документ № {{.ID}}`),
	TemplateClaim: mustTemplate(TemplateClaim, "Претензия", `ПРЕТЕНЗИЯ от {{.Date}}

Кому: `+partyBlock+`

По договору № {{.F "number"}} образовалась задолженность в размере {{.F "amount"}} руб.
Просим погасить её в течение {{.Or "days" "10"}} календарных дней. В противном случае
мы обратимся в арбитражный суд с требованием о взыскании долга и неустойки.

Документ № {{.ID}}`),
}

// Templates lists the registered template names.
func Templates() []string {
	out := make([]string, 0, len(templates))
	for k := range templates {
		out = append(out, k)
	}
	return out
}

type docData struct {
	fields map[string]string
	id     string
	date   time.Time
}

func (d docData) F(key string) string {
	if v := d.fields[key]; v != "" {
		return v
	}
	return blank
}

func (d docData) Opt(key string) string { return d.fields[key] }

func (d docData) Or(key, def string) string {
	if v := d.fields[key]; v != "" {
		return v
	}
	return def
}

func (d docData) ID() string { return d.id }

func (d docData) Date() string {
	if v := d.fields["date"]; v != "" {
		return v
	}
	return d.date.Format("02.01.2006")
}

// Generate renders tpl with params. Party fields the user did not supply are
// prefilled from a fresh company_requisites entry. The result is stored as
// generated_document.
func (s *Suite) Generate(ctx context.Context, userID int64, tpl string, params map[string]string) (GeneratedDocument, error) {
	t, ok := templates[tpl]
	if !ok {
		return GeneratedDocument{}, fmt.Errorf("%w %q", ErrUnknownTemplate, tpl)
	}
	fields := maps.Clone(params)
	if fields == nil {
		fields = map[string]string{}
	}
	prefilled, err := s.prefill(ctx, userID, fields)
	if err != nil {
		return GeneratedDocument{}, err
	}

	doc := GeneratedDocument{
		ID:        s.newID(),
		Template:  tpl,
		Title:     t.title,
		Prefilled: prefilled,
		CreatedAt: s.now(),
	}
	var b strings.Builder
	if err := t.tmpl.Execute(&b, docData{fields: fields, id: doc.ID, date: doc.CreatedAt}); err != nil {
		return GeneratedDocument{}, fmt.Errorf("features: render %s: %w", tpl, err)
	}
	doc.Body = b.String()

	if err := s.links.Put(ctx, userID, KeyGeneratedDocument, doc); err != nil {
		return doc, err
	}
	logger.Info(ctx, logger.CompConversation, "document",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("template", tpl),
		slog.Bool("prefilled", prefilled),
	)
	return doc, nil
}

// prefill copies counterparty requisites into empty party_* fields.
func (s *Suite) prefill(ctx context.Context, userID int64, fields map[string]string) (bool, error) {
	r, ok, err := s.Requisites(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	c := r.Company
	used := false
	for key, v := range map[string]string{
		"party_name":    c.Name,
		"party_inn":     c.INN,
		"party_kpp":     c.KPP,
		"party_ogrn":    c.OGRN,
		"party_address": c.Address,
		"party_manager": c.Manager,
	} {
		if v == "" || fields[key] != "" {
			continue
		}
		fields[key] = v
		used = true
	}
	return used, nil
}

// Render formats the document as the result text.
func (d GeneratedDocument) Render() string {
	note := ""
	if d.Prefilled {
		note = "\n\nРеквизиты контрагента подставлены из последней проверки ИНН."
	}
	return d.Title + "\n\n" + d.Body + note
}
