// Package tui is a terminal front end for practicing interviews with Clara.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"upitquest/internal/domain"
	"upitquest/internal/usecase"
)

const (
	defaultWidth      = 80
	defaultHeight     = 24
	maxQuestionLines  = 5
	chromeLines       = 3 // header, input, status
	minViewportHeight = 3
)

// Model is the bubbletea state of the terminal surface.
type Model struct {
	ctx     context.Context
	backend Backend

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int

	turns     []domain.Turn
	question  string
	loading   map[domain.LoadingKind]bool
	playback  domain.PlaybackState
	recording bool

	status      string
	statusIsErr bool
}

func NewModel(ctx context.Context, backend Backend) *Model {
	input := textinput.New()
	input.Placeholder = "Talk to Clara, or /help"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := &Model{
		ctx:      ctx,
		backend:  backend,
		input:    input,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeLines),
		spinner:  spin,
		width:    defaultWidth,
		height:   defaultHeight,
		turns:    backend.Conversation(),
		question: backend.Question(),
		loading:  make(map[domain.LoadingKind]bool),
		playback: domain.PlaybackState{Phase: domain.PlaybackIdle},
	}
	m.layout()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil
	case ConversationMsg:
		m.turns = msg.Turns
		m.refreshConversation()
		return m, nil
	case LoadingMsg:
		m.loading[msg.Kind] = msg.Loading
		if msg.Kind == domain.LoadingRecording && !msg.Loading {
			m.recording = false
		}
		return m, nil
	case PlaybackMsg:
		m.playback = msg.State
		return m, nil
	case PendingInputMsg:
		m.input.SetValue(msg.Text)
		m.input.CursorEnd()
		return m, nil
	case QuestionMsg:
		m.question = msg.Question
		m.layout()
		return m, nil
	case ErrorMsg:
		m.setError(errorMessage(msg.Code, msg.Detail))
		return m, nil
	case codeLoadedMsg:
		m.setNotice("loaded " + msg.question.Title)
		return m, nil
	case actionDoneMsg:
		m.finishAction(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit
	case "enter":
		return m.submit()
	case "ctrl+r":
		return m.toggleRecording()
	case "ctrl+p":
		return m.togglePlayback("")
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if cmd, ok := parseCommand(text); ok {
		m.input.Reset()
		return m.runCommand(cmd)
	}
	if m.loading[domain.LoadingChat] {
		return nil
	}
	m.input.Reset()
	return m.send(text)
}

func (m *Model) finishAction(msg actionDoneMsg) {
	switch {
	case msg.err == nil:
		if msg.notice != "" {
			m.setNotice(msg.notice)
		}
	case errors.Is(msg.err, domain.ErrEmptyInput), usecase.IsSuperseded(msg.err):
	default:
		code := domain.ErrorCodeFor(msg.err)
		if code == domain.ErrorCodeAudioCapture {
			m.recording = false
		}
		m.setError(errorMessage(code, msg.err.Error()))
	}
}

func (m *Model) setNotice(text string) {
	m.status = text
	m.statusIsErr = false
}

func (m *Model) setError(text string) {
	m.status = text
	m.statusIsErr = true
}

// layout sizes the viewport to whatever the question pane leaves free.
func (m *Model) layout() {
	m.input.Width = max(m.width-len(m.input.Prompt)-1, 1)
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chromeLines-len(m.questionLines()), minViewportHeight)
	m.refreshConversation()
}

func (m *Model) refreshConversation() {
	m.viewport.SetContent(renderTurns(m.turns, m.width))
	m.viewport.GotoBottom()
}

func errorMessage(code domain.ErrorCode, detail string) string {
	var summary string
	switch code {
	case domain.ErrorCodeMissingCredential:
		summary = "add your OpenAI API key with /key"
	case domain.ErrorCodeGateway:
		summary = "the tutor service is unavailable"
	case domain.ErrorCodePlayback:
		summary = "audio playback failed"
	case domain.ErrorCodeSelectionEmpty:
		summary = "nothing to play"
	case domain.ErrorCodeBusy:
		summary = "Clara is still replying"
	case domain.ErrorCodeAudioCapture:
		summary = "microphone issue"
	case domain.ErrorCodePreferences:
		summary = "settings could not be saved"
	case domain.ErrorCodeQuestion:
		summary = "question not found"
	default:
		if detail == "" {
			return "unknown error"
		}
		return detail
	}
	if detail == "" {
		return summary
	}
	return summary + ": " + detail
}
