package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/aretw0/headless/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
// Text is returned unchanged when no renderer can be built.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown, err
		}
		return strings.Trim(out, "\n"), nil
	}
}

var labelColors = map[domain.MessageSource]string{
	domain.SourceUser:  "#a78bfa",
	domain.SourceBot:   "#818cf8",
	domain.SourceAgent: "#f472b6",
}

// Label returns the colored speaker label for source.
func Label(source domain.MessageSource) string {
	p := termenv.ColorProfile()
	color, ok := labelColors[source]
	if !ok {
		color = "#9ca3af"
	}
	return termenv.String(string(source) + ":").Foreground(p.Color(color)).Bold().String()
}
