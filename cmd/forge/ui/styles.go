// Package ui provides the visual styling for the forge interactive CLI,
// with light and dark themes.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Light mode colors
	LightForeground = lipgloss.Color("#1a2536")
	LightPrimary    = lipgloss.Color("#0f4c81")
	LightAccent     = lipgloss.Color("#d97706")
	LightMuted      = lipgloss.Color("#6b7280")
	LightBorder     = lipgloss.Color("#d1d5db")

	// Dark mode colors
	DarkForeground = lipgloss.Color("#e5e7eb")
	DarkPrimary    = lipgloss.Color("#7aa2f7")
	DarkAccent     = lipgloss.Color("#e0af68")
	DarkMuted      = lipgloss.Color("#565f89")
	DarkBorder     = lipgloss.Color("#3b4261")

	// Semantic colors, same in both modes
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#9ece6a")
	Warning     = lipgloss.Color("#FFC107")
)

// Theme holds the current color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode unless the terminal declares a light
// background.
func DetectTheme() Theme {
	if strings.Contains(strings.ToLower(os.Getenv("COLORFGBG")), ";15") {
		return LightTheme()
	}
	return DarkTheme()
}

// Styles bundles the lipgloss styles used by the chat view.
type Styles struct {
	Theme Theme

	Prompt    lipgloss.Style
	UserInput lipgloss.Style
	UserMsg   lipgloss.Style
	Assistant lipgloss.Style
	ToolCall  lipgloss.Style
	ErrorMsg  lipgloss.Style
	Status    lipgloss.Style
	ModeBadge lipgloss.Style
	PlanBadge lipgloss.Style
	Spinner   lipgloss.Style

	ApprovalBox   lipgloss.Style
	ApprovalTitle lipgloss.Style
	ApprovalHint  lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme:     theme,
		Prompt:    lipgloss.NewStyle().Foreground(theme.Primary),
		UserInput: lipgloss.NewStyle().Foreground(theme.Foreground),
		UserMsg:   lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(theme.Foreground),
		ToolCall:  lipgloss.NewStyle().Foreground(theme.Muted).Italic(true),
		ErrorMsg:  lipgloss.NewStyle().Foreground(Destructive),
		Status:    lipgloss.NewStyle().Foreground(theme.Muted),
		ModeBadge: lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
		PlanBadge: lipgloss.NewStyle().Foreground(Success).Bold(true),
		Spinner:   lipgloss.NewStyle().Foreground(theme.Accent),

		ApprovalBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Warning).
			Padding(0, 1),
		ApprovalTitle: lipgloss.NewStyle().Foreground(Warning).Bold(true),
		ApprovalHint:  lipgloss.NewStyle().Foreground(theme.Muted),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}
