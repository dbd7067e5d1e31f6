package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"upitquest/internal/domain"
)

const helpText = "/question <id>  /questions  /ask <text>  /code <file>  /play [text]  /stop  /record  /key <api key>  /autoplay on|off  /reset  /quit"

var errUnknownCommand = errors.New("unknown command")

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name rest" input. ok is false for plain chat text.
func parseCommand(input string) (command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(input[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

func (m *Model) runCommand(cmd command) tea.Cmd {
	switch cmd.name {
	case "help", "h":
		m.setNotice(helpText)
		return nil
	case "quit", "q", "exit":
		return tea.Quit
	case "questions":
		m.setNotice(questionList(m.backend.Questions()))
		return nil
	case "question":
		return m.chooseQuestion(cmd.arg)
	case "ask":
		return m.action(func() (string, error) {
			if strings.TrimSpace(cmd.arg) == "" {
				return "", domain.ErrEmptyInput
			}
			m.backend.SetQuestion(cmd.arg)
			return "", nil
		})
	case "code":
		return m.loadCode(cmd.arg)
	case "play":
		return m.togglePlayback(cmd.arg)
	case "stop":
		return m.action(func() (string, error) { return "", m.backend.StopPlayback() })
	case "record", "rec":
		return m.toggleRecording()
	case "key":
		return m.saveKey(cmd.arg)
	case "autoplay":
		return m.setAutoPlay(cmd.arg)
	case "reset":
		return m.action(func() (string, error) {
			m.backend.Reset()
			return "new session", nil
		})
	default:
		m.setError(fmt.Sprintf("%v: /%s", errUnknownCommand, cmd.name))
		return nil
	}
}

// action runs fn off the update loop and reports its outcome. Backend calls
// that emit events must go through here, since the sink blocks on the loop.
func (m *Model) action(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		notice, err := fn()
		return actionDoneMsg{notice: notice, err: err}
	}
}

func (m *Model) send(text string) tea.Cmd {
	ctx := m.ctx
	return m.action(func() (string, error) {
		_, err := m.backend.Send(ctx, text)
		return "", err
	})
}

func (m *Model) chooseQuestion(id string) tea.Cmd {
	return func() tea.Msg {
		question, err := m.backend.ChooseQuestion(id)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return codeLoadedMsg{question: question}
	}
}

func (m *Model) loadCode(path string) tea.Cmd {
	return m.action(func() (string, error) {
		if path == "" {
			return "", fmt.Errorf("usage: /code <file>")
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read code: %w", err)
		}
		m.backend.SetCode(string(contents))
		return fmt.Sprintf("code loaded from %s", path), nil
	})
}

// togglePlayback speaks text, or the latest assistant reply when text is empty.
func (m *Model) togglePlayback(text string) tea.Cmd {
	if text == "" && !m.playback.IsPlaying() {
		text = lastAssistant(m.turns)
	}
	ctx := m.ctx
	return m.action(func() (string, error) {
		return "", m.backend.TogglePlayback(ctx, text)
	})
}

func (m *Model) toggleRecording() tea.Cmd {
	ctx := m.ctx
	if m.recording {
		m.recording = false
		return m.action(func() (string, error) {
			_, err := m.backend.StopRecording(ctx)
			return "", err
		})
	}
	m.recording = true
	return m.action(func() (string, error) {
		return "recording, /record again to send", m.backend.StartRecording(ctx)
	})
}

func (m *Model) saveKey(key string) tea.Cmd {
	return m.action(func() (string, error) {
		prefs := m.backend.Preferences()
		prefs.APIKey = strings.TrimSpace(key)
		if err := m.backend.SavePreferences(prefs); err != nil {
			return "", err
		}
		if prefs.APIKey == "" {
			return "api key cleared", nil
		}
		return "api key saved", nil
	})
}

func (m *Model) setAutoPlay(arg string) tea.Cmd {
	return m.action(func() (string, error) {
		prefs := m.backend.Preferences()
		switch strings.ToLower(arg) {
		case "on", "true", "1":
			prefs.AutoPlay = true
		case "off", "false", "0":
			prefs.AutoPlay = false
		case "":
			prefs.AutoPlay = !prefs.AutoPlay
		default:
			return "", fmt.Errorf("usage: /autoplay on|off")
		}
		if err := m.backend.SavePreferences(prefs); err != nil {
			return "", err
		}
		if prefs.AutoPlay {
			return "autoplay on", nil
		}
		return "autoplay off", nil
	})
}

func questionList(questions []domain.Question) string {
	if len(questions) == 0 {
		return "no questions available"
	}
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		lines = append(lines, fmt.Sprintf("%s: %s", q.ID, q.Title))
	}
	return strings.Join(lines, "\n")
}

func lastAssistant(turns []domain.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleAssistant {
			return turns[i].Content
		}
	}
	return ""
}
