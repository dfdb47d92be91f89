package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fruitsalade/mediavault/internal/media"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	ColorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	ColorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Underline(true)
	StyleRoot    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	StyleBold    = lipgloss.NewStyle().Bold(true)
)

func FormatSuccess(msg string) string { return StyleSuccess.Render("✔") + " " + msg }
func FormatError(msg string) string   { return StyleError.Render("✘") + " " + msg }
func FormatWarning(msg string) string { return StyleWarning.Render("⚠") + " " + msg }

// renderTree draws the directory tree with box-drawing connectors. Roots
// are listed with their labels.
func renderTree(roots []media.DirectoryNode, labels map[string]string) string {
	var b strings.Builder
	for _, r := range roots {
		b.WriteString(StyleRoot.Render(r.Name))
		if l := labels[r.Name]; l != "" && l != r.Name {
			b.WriteString(" " + StyleMuted.Render("("+l+")"))
		}
		b.WriteByte('\n')
		renderChildren(&b, r.Children, "")
	}
	return b.String()
}

func renderChildren(b *strings.Builder, nodes []media.DirectoryNode, prefix string) {
	for i, n := range nodes {
		connector, next := "├── ", "│   "
		if i == len(nodes)-1 {
			connector, next = "└── ", "    "
		}
		b.WriteString(StyleMuted.Render(prefix+connector) + n.Name + "\n")
		renderChildren(b, n.Children, prefix+next)
	}
}
