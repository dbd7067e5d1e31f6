package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

// Sink converts backend events into bubbletea messages. Events that arrive
// before a program is attached are dropped; the model reads a snapshot from
// the backend when it is created.
type Sink struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

var _ ports.EventSink = (*Sink)(nil)

func NewSink() *Sink {
	return &Sink{}
}

// Attach forwards all further events to program.
func (s *Sink) Attach(program *tea.Program) {
	s.attach(program.Send)
}

func (s *Sink) attach(send func(tea.Msg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = send
}

func (s *Sink) forward(msg tea.Msg) {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()
	if send == nil {
		return
	}
	send(msg)
}

func (s *Sink) ConversationChanged(display []domain.Turn) {
	s.forward(ConversationMsg{Turns: display})
}

func (s *Sink) LoadingChanged(kind domain.LoadingKind, loading bool) {
	s.forward(LoadingMsg{Kind: kind, Loading: loading})
}

func (s *Sink) PlaybackStateChanged(state domain.PlaybackState) {
	s.forward(PlaybackMsg{State: state})
}

func (s *Sink) PendingInputChanged(text string) {
	s.forward(PendingInputMsg{Text: text})
}

func (s *Sink) QuestionChanged(question string) {
	s.forward(QuestionMsg{Question: question})
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	s.forward(ErrorMsg{Code: code, Detail: detail})
}
