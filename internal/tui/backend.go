package tui

import (
	"context"

	"upitquest/internal/bootstrap"
	"upitquest/internal/domain"
)

// Backend is the slice of the application services the terminal drives.
type Backend interface {
	Send(ctx context.Context, text string) (domain.Turn, error)
	SetCode(code string)
	SetQuestion(text string)
	ChooseQuestion(id string) (domain.Question, error)
	Questions() []domain.Question
	Reset()
	Conversation() []domain.Turn
	Question() string
	TogglePlayback(ctx context.Context, selection string) error
	StopPlayback() error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (domain.Turn, error)
	Preferences() domain.Preferences
	SavePreferences(prefs domain.Preferences) error
}

// ServicesBackend adapts wired services to Backend.
type ServicesBackend struct {
	services *bootstrap.Services
}

var _ Backend = (*ServicesBackend)(nil)

func NewServicesBackend(services *bootstrap.Services) *ServicesBackend {
	return &ServicesBackend{services: services}
}

func (b *ServicesBackend) Send(ctx context.Context, text string) (domain.Turn, error) {
	return b.services.Tutor.Send(ctx, text)
}

func (b *ServicesBackend) SetCode(code string) { b.services.Tutor.SetCode(code) }

func (b *ServicesBackend) SetQuestion(text string) { b.services.Tutor.SetQuestion(text) }

func (b *ServicesBackend) ChooseQuestion(id string) (domain.Question, error) {
	return b.services.Tutor.ChooseQuestion(id)
}

func (b *ServicesBackend) Questions() []domain.Question { return b.services.Questions.List() }

func (b *ServicesBackend) Reset() { b.services.Tutor.Reset() }

func (b *ServicesBackend) Conversation() []domain.Turn { return b.services.Tutor.Conversation() }

func (b *ServicesBackend) Question() string { return b.services.Tutor.Question() }

func (b *ServicesBackend) TogglePlayback(ctx context.Context, selection string) error {
	return b.services.Playback.Toggle(ctx, selection)
}

func (b *ServicesBackend) StopPlayback() error { return b.services.Playback.Stop() }

func (b *ServicesBackend) StartRecording(ctx context.Context) error {
	return b.services.Recorder.Start(ctx)
}

func (b *ServicesBackend) StopRecording(ctx context.Context) (domain.Turn, error) {
	return b.services.Recorder.Stop(ctx)
}

func (b *ServicesBackend) Preferences() domain.Preferences {
	return b.services.Preferences.Current()
}

func (b *ServicesBackend) SavePreferences(prefs domain.Preferences) error {
	return b.services.Preferences.Save(prefs)
}
