// Package commands describes slash commands registered with the bot.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are alternative names, with or without the leading slash.
	Aliases []string
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}

// HasAlias reports whether name (slash-prefixed) is one of the aliases.
func (c Command) HasAlias(name string) bool {
	for _, alias := range c.Aliases {
		if "/"+strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}

// Normalize strips arguments and a trailing @botname from a command line and
// adds the leading slash. It returns "" for blank input.
func Normalize(text string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return ""
	}
	return "/" + strings.TrimPrefix(name, "/")
}
