// Package render prints chat messages to a terminal in their chat frame
// colors.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/markup"
)

// Printer writes one line per message. Colors are dropped automatically
// when w is not a terminal.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	tab      chat.Tab
	urls     bool
}

// New returns a printer for messages matching tab. With urls set, links are
// followed by their lookup URL.
func New(w io.Writer, tab chat.Tab, urls bool) *Printer {
	return &Printer{w: w, renderer: lipgloss.NewRenderer(w), tab: tab, urls: urls}
}

// Hex formats c as "#RRGGBB".
func Hex(c markup.Color) string {
	return fmt.Sprintf("#%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

func (p *Printer) style(c markup.Color) lipgloss.Style {
	return p.renderer.NewStyle().Foreground(lipgloss.Color(Hex(c)))
}

// Line renders m without a trailing newline.
func (p *Printer) Line(m chat.Message) string {
	base := p.style(m.Category.Color())

	var b strings.Builder
	b.WriteString(base.Render(m.DisplayPrefix()))
	if len(m.Segments) == 0 {
		b.WriteString(base.Render(m.Text))
		return b.String()
	}
	for _, s := range m.Segments {
		if !s.IsLink() {
			b.WriteString(base.Render(s.Text))
			continue
		}
		b.WriteString(p.style(s.Color).Render("[" + s.Text + "]"))
		if p.urls {
			b.WriteString(base.Faint(true).Render(" <" + s.URL() + ">"))
		}
	}
	return b.String()
}

// Print writes m if it matches the printer's tab.
func (p *Printer) Print(m chat.Message) error {
	if !p.tab.Matches(m.Category) {
		return nil
	}
	_, err := fmt.Fprintln(p.w, p.Line(m))
	return err
}
