// Package format escapes user text for Telegram parse modes.
package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

// Entity types with their own MarkdownV2 escaping rules.
const (
	EntityPre      = "pre"
	EntityCode     = "code"
	EntityTextLink = "text_link"
)

var (
	mdV1Re     = regexp.MustCompile("([_*`\\[])")
	mdV2Re     = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)
	mdV2CodeRe = regexp.MustCompile("([`\\\\])")
	mdV2LinkRe = regexp.MustCompile(`([)\\])`)
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2. For V2,
// entityType narrows the set inside code blocks and link targets.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		switch strings.ToLower(entityType) {
		case EntityPre, EntityCode:
			return mdV2CodeRe.ReplaceAllString(text, `\$1`), nil
		case EntityTextLink:
			return mdV2LinkRe.ReplaceAllString(text, `\$1`), nil
		}
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes plain text for MarkdownV2.
func V2(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2, "")
	return out
}
