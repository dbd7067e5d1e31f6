// Package conversation keeps the chat log shown to the candidate and the
// context sent to the completion service as one append-only sequence.
package conversation

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"upitquest/internal/domain"
)

// Entry is one canonical log record. WireText overrides the turn content in
// the wire projection when non-empty.
type Entry struct {
	ID       string
	Turn     domain.Turn
	WireText string
}

func (e Entry) wire() domain.Turn {
	if e.WireText == "" {
		return e.Turn
	}
	return domain.Turn{Role: e.Turn.Role, Content: e.WireText}
}

// Model is safe for concurrent use.
type Model struct {
	mu      sync.RWMutex
	seed    domain.Turn
	entries []Entry
}

// New returns a model holding only the seed turn.
func New(seed domain.Turn) *Model {
	m := &Model{seed: seed}
	m.Reset()
	return m
}

// Reset discards every turn except the seed.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Model) resetLocked() {
	m.entries = []Entry{newEntry(m.seed, "")}
}

// AppendUser records a candidate message. The wire copy carries the current
// editor buffer so the tutor can see the code.
func (m *Model) AppendUser(text string, code string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, newEntry(
		domain.Turn{Role: domain.RoleUser, Content: text},
		WireUserText(text, code),
	))
	return nil
}

// AppendAssistant records a reply verbatim in both projections.
func (m *Model) AppendAssistant(turn domain.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, newEntry(turn, ""))
}

// SetQuestion starts a new conversation whose opening turn is the tutor
// posing text. The welcome seed is not kept.
func (m *Model) SetQuestion(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = []Entry{newEntry(domain.Turn{Role: domain.RoleAssistant, Content: text}, "")}
}

// Display returns the turns rendered in the chat pane.
func (m *Model) Display() []domain.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Turn, len(m.entries))
	for i, entry := range m.entries {
		out[i] = entry.Turn
	}
	return out
}

// Wire returns the turns sent to the completion service.
func (m *Model) Wire() []domain.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Turn, len(m.entries))
	for i, entry := range m.entries {
		out[i] = entry.wire()
	}
	return out
}

// Entries returns a copy of the canonical log.
func (m *Model) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// WireUserText is the wire form of a candidate message.
func WireUserText(text string, code string) string {
	return "message: " + text + " \n code: " + code
}

func newEntry(turn domain.Turn, wireText string) Entry {
	return Entry{ID: uuid.NewString(), Turn: turn, WireText: wireText}
}
