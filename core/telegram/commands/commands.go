// Package commands describes slash commands before they reach the registry.
package commands

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are routed to the same handler but never published in the menu.
	Aliases []string
}

// maxNameLen is Telegram's limit for a command name without the slash.
const maxNameLen = 32

// Validate checks that name and every alias are usable Telegram commands and
// that the command has a handler and description.
func (c Command) Validate(name string) error {
	if c.Handler == nil {
		return fmt.Errorf("command %s: nil handler", name)
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("command %s: empty description", name)
	}
	errs := []error{validName(name)}
	for _, alias := range c.Aliases {
		errs = append(errs, validName(Normalize(alias)))
	}
	return errors.Join(errs...)
}

// Endpoints returns name followed by its normalised aliases.
func (c Command) Endpoints(name string) []string {
	out := make([]string, 0, len(c.Aliases)+1)
	out = append(out, name)
	for _, alias := range c.Aliases {
		if a := Normalize(alias); a != name {
			out = append(out, a)
		}
	}
	return out
}

// Normalize lower-cases a command and adds the leading slash.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func validName(name string) error {
	if !strings.HasPrefix(name, "/") {
		return fmt.Errorf("command %q: missing slash prefix", name)
	}
	body := name[1:]
	if body == "" || len(body) > maxNameLen {
		return fmt.Errorf("command %q: length must be 1..%d", name, maxNameLen)
	}
	for _, r := range body {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("command %q: invalid character %q", name, r)
		}
	}
	return nil
}
