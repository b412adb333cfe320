package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	claimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

func init() {
	// Styling is only worth it on a real color terminal; piped output stays
	// plain so scripts can parse it.
	if !term.IsTerminal(int(os.Stdout.Fd())) || termenv.ColorProfile() == termenv.Ascii {
		plain := lipgloss.NewStyle()
		labelStyle = plain
		valueStyle = plain
		claimStyle = plain
	}
}
