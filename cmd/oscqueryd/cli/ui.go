package cli

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#3ECF8E")
	errorColor   = lipgloss.Color("#EF4444")
	infoColor    = lipgloss.Color("#3B82F6")
	successColor = lipgloss.Color("#10B981")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(infoColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6"))
)

// Banner returns the oscqueryd ASCII banner.
func Banner() string {
	banner := `
 ___  ____   ___  ___  _   _  ___ _ __ _   _
/ _ \/ ___| / __|/ _ \| | | |/ _ \ '__| | | |
| (_) \___ \| (__| (_) | |_| |  __/ |  | |_| |
\___/|____/ \___|\__\_\\__,_|\___|_|   \__, |
                                        |___/
`
	return titleStyle.Render(banner)
}

func statusLine(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
