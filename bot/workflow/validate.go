package workflow

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
	"github.com/m3rciful/evabot/core/telegram/state"
)

// MaxQuestionRunes caps a legal question.
const MaxQuestionRunes = 4000

var (
	inn10Weights  = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights1 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights2 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// INNValidator strips non-digits and requires 10 or 12 digits. With strict
// the control digits are verified too.
func INNValidator(strict bool) state.Validator {
	return func(input string) state.ValidationResult {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, input)
		if len(digits) != 10 && len(digits) != 12 {
			return state.Invalid("ИНН должен содержать 10 или 12 цифр")
		}
		if strict && !ValidINNChecksum(digits) {
			return state.Invalid("Неверная контрольная сумма ИНН")
		}
		return state.Valid(digits)
	}
}

// ValidINNChecksum verifies the control digits of a 10 or 12 digit INN.
func ValidINNChecksum(digits string) bool {
	switch len(digits) {
	case 10:
		return control(digits, inn10Weights) == digit(digits, 9)
	case 12:
		return control(digits, inn12Weights1) == digit(digits, 10) &&
			control(digits, inn12Weights2) == digit(digits, 11)
	}
	return false
}

func control(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += w * digit(digits, i)
	}
	return sum % 11 % 10
}

func digit(s string, i int) int { return int(s[i] - '0') }

// ParseFields reads "key: value" lines. Keys are lowercased and resolved
// through the Russian aliases; lines without a colon are skipped.
func ParseFields(input string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(input, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if alias, ok := fieldAliases[k]; ok {
			k = alias
		}
		out[k] = v
	}
	return out
}

var fieldAliases = map[string]string{
	"название":     "name",
	"наименование": "name",
	"инн":          "inn",
	"адрес":        "address",
	"кпп":          "kpp",
	"огрн":         "ogrn",
	"директор":     "manager",
	"дата":         "date",
	"сумма":        "amount",
	"номер":        "number",
	"предмет":      "subject",
}

// FormatFields renders fields back as sorted "key: value" lines.
func FormatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, fields[k])
	}
	return b.String()
}

var companyRequired = []string{"name", "inn", "address"}

// ValidateCompanyData requires name, inn and address lines.
func ValidateCompanyData(input string) state.ValidationResult {
	fields := ParseFields(input)
	var missing []string
	for _, f := range companyRequired {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return state.Invalid("Отсутствуют обязательные поля: " + strings.Join(missing, ", "))
	}
	if res := INNValidator(false)(fields["inn"]); !res.Valid {
		return res
	}
	return state.Valid(FormatFields(fields))
}

// ValidateDocumentParams needs at least one "key: value" line. A date is
// normalized to DD.MM.YYYY.
func ValidateDocumentParams(input string) state.ValidationResult {
	fields := ParseFields(input)
	if len(fields) == 0 {
		return state.Invalid("Укажите параметры в формате «ключ: значение», по одному на строку")
	}
	if raw, ok := fields["date"]; ok {
		t, ok := tghelpers.ParseFlexibleDate(raw)
		if !ok {
			return state.Invalid("Не удалось распознать дату: " + raw)
		}
		fields["date"] = t.Format("02.01.2006")
	}
	return state.Valid(FormatFields(fields))
}

// ValidateLegalQuestion trims the question and bounds its length.
func ValidateLegalQuestion(input string) state.ValidationResult {
	q := strings.TrimFunc(input, unicode.IsSpace)
	if q == "" {
		return state.Invalid("Вопрос не может быть пустым")
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionRunes {
		return state.Invalid(fmt.Sprintf("Вопрос слишком длинный: %d символов из %d", n, MaxQuestionRunes))
	}
	return state.Valid(q)
}

var documentExts = []string{".txt", ".md", ".pdf", ".doc", ".docx", ".rtf", ".odt"}

// ValidateDocumentName accepts contract files by extension.
func ValidateDocumentName(name string) state.ValidationResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return state.Invalid("Файл без имени не поддерживается")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(documentExts, ext) {
		return state.Invalid("Поддерживаются файлы: " + strings.Join(documentExts, ", "))
	}
	return state.Valid(name)
}
