package tui

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"upitquest/internal/domain"
)

const (
	colorPurple    = "#A78BFA"
	colorSky       = "#38BDF8"
	colorGreen     = "#22C55E"
	colorGray      = "#94A3B8"
	colorLightGray = "#CBD5E1"
	colorRed       = "#F87171"
	colorAmber     = "#FBBF24"

	turnIndent = 2
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorPurple))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAmber))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorSky))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLightGray))
	talkingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorGreen))
	quietStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))

	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

func (m *Model) View() string {
	sections := []string{m.headerView()}
	sections = append(sections, m.questionLines()...)
	sections = append(sections, m.viewport.View(), m.input.View(), m.statusView())
	return strings.Join(sections, "\n")
}

func (m *Model) headerView() string {
	avatar := quietStyle.Render("( o_o ) Clara")
	if m.playback.Talking {
		avatar = talkingStyle.Render("( o0o ) Clara")
	} else if m.playback.Phase == domain.PlaybackPlaying {
		avatar = talkingStyle.Render("( o_o ) Clara")
	}

	parts := []string{titleStyle.Render("Up It Quest"), avatar}
	if m.recording {
		parts = append(parts, errorStyle.Render("● rec"))
	}
	if prefs := m.backend.Preferences(); prefs.AutoPlay {
		parts = append(parts, quietStyle.Render("autoplay"))
	}
	return truncate.String(strings.Join(parts, "  "), uint(max(m.width, 1)))
}

// questionLines is the question pane as plain wrapped text, capped in height.
func (m *Model) questionLines() []string {
	text := plainText(m.question)
	if text == "" {
		return nil
	}
	lines := strings.Split(wordwrap.String(text, max(m.width, 1)), "\n")
	if len(lines) > maxQuestionLines {
		lines = append(lines[:maxQuestionLines-1], "…")
	}
	for i, line := range lines {
		lines[i] = questionStyle.Render(line)
	}
	return lines
}

func (m *Model) statusView() string {
	var parts []string
	if kinds := m.activeLoading(); len(kinds) > 0 {
		parts = append(parts, m.spinner.View()+" "+strings.Join(kinds, ", "))
	}
	if m.status != "" {
		status := strings.ReplaceAll(m.status, "\n", "  |  ")
		if m.statusIsErr {
			parts = append(parts, errorStyle.Render(status))
		} else {
			parts = append(parts, quietStyle.Render(status))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, quietStyle.Render("enter send · ctrl+r record · ctrl+p play · /help"))
	}
	return truncate.String(strings.Join(parts, "  "), uint(max(m.width, 1)))
}

func (m *Model) activeLoading() []string {
	var kinds []string
	for kind, on := range m.loading {
		if on {
			kinds = append(kinds, string(kind))
		}
	}
	sort.Strings(kinds)
	return kinds
}

// renderTurns formats the display projection for the conversation viewport.
func renderTurns(turns []domain.Turn, width int) string {
	bodyWidth := max(width-turnIndent, 1)
	blocks := make([]string, 0, len(turns))
	for _, turn := range turns {
		var label string
		content := turn.Content
		switch turn.Role {
		case domain.RoleUser:
			label = userStyle.Render("You")
		case domain.RoleQuestion:
			label = questionStyle.Render("Question")
			content = plainText(content)
		default:
			label = assistantStyle.Render("Clara")
		}
		body := indent.String(wordwrap.String(content, bodyWidth), turnIndent)
		blocks = append(blocks, label+"\n"+body)
	}
	return strings.Join(blocks, "\n\n")
}

// plainText drops markup from question HTML for terminal display.
func plainText(markup string) string {
	text := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "<li>", "\n- ").Replace(markup)
	text = html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
