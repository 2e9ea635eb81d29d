package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"toolseek/internal/scanner"
)

// Renderer colorizes streamed text by region. Code blocks render green,
// spliced execution output orange, surrounding reasoning dim. The tag
// markers themselves are swallowed; the colors carry the structure.
// Marker recognition survives chunk boundaries because the scanner holds
// back partial markers between feeds.
type Renderer struct {
	sc *scanner.Scanner
}

func NewRenderer() *Renderer {
	return &Renderer{sc: scanner.New()}
}

// RenderReasoning styles one reasoning chunk for display.
func (r *Renderer) RenderReasoning(text string) string {
	return r.render(text, StyleReason)
}

// RenderContent styles one answer chunk for display.
func (r *Renderer) RenderContent(text string) string {
	return r.render(text, lipgloss.NewStyle())
}

// Flush returns any text still held back as a potential marker, styled as
// plain text. Call when the stream ends.
func (r *Renderer) Flush(base lipgloss.Style) string {
	var b strings.Builder
	for _, ev := range r.sc.Flush() {
		b.WriteString(base.Render(ev.Text))
	}
	return b.String()
}

func (r *Renderer) render(text string, base lipgloss.Style) string {
	var b strings.Builder
	for _, ev := range r.sc.Feed(text) {
		if ev.Kind != scanner.EventText {
			continue
		}
		switch ev.Region {
		case scanner.RegionCode:
			b.WriteString(StyleCode.Render(ev.Text))
		case scanner.RegionOutput:
			b.WriteString(StyleOutput.Render(ev.Text))
		default:
			b.WriteString(base.Render(ev.Text))
		}
	}
	return b.String()
}
