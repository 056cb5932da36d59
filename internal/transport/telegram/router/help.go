package router

import (
	"html"
	"strings"

	"pingbot/internal/users"
)

// helpText renders the commands visible to role in HTML parse mode.
func (m *CommandManager) helpText(role users.Role) string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	lines := []string{"📚 <b>Available commands</b>", ""}
	for _, c := range cmds {
		if c.Hidden || !c.Access.allows(role) {
			continue
		}
		line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			line += "\n  <i>" + html.EscapeString(u) + "</i>"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
