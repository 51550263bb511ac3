package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the headless ASCII art banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{" _                    _ _               ", "#818cf8"},
		{"| |__   ___  __ _  __| | | ___  ___ ___ ", "#a78bfa"},
		{"| '_ \\ / _ \\/ _` |/ _` | |/ _ \\/ __/ __|", "#c084fc"},
		{"| | | |  __/ (_| | (_| | |  __/\\__ \\__ \\", "#e879f9"},
		{"|_| |_|\\___|\\__,_|\\__,_|_|\\___||___/___/", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	}
	fmt.Fprintln(w)
}
