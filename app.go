package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"upitquest/internal/bootstrap"
	"upitquest/internal/domain"
	"upitquest/internal/usecase"
)

const (
	eventConversation = "upitquest:conversation"
	eventLoading      = "upitquest:loading"
	eventPlayback     = "upitquest:playback"
	eventPendingInput = "upitquest:pending-input"
	eventQuestion     = "upitquest:question"
	eventError        = "upitquest:error"
)

const shutdownTimeout = 3 * time.Second

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ConversationChanged(services.Tutor.Conversation())
	if !services.Preferences.HasCredential() {
		a.SessionError(domain.ErrorCodeMissingCredential, domain.ErrMissingCredential.Error())
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.services == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = a.services.Close(ctx)
}

// proxyHandler lets the webview reach the proxy endpoints through the asset
// server. It is not bound to the frontend.
func (a *App) proxyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.services == nil {
			http.Error(w, "application is not initialized", http.StatusServiceUnavailable)
			return
		}
		a.services.Proxy.Handler().ServeHTTP(w, r)
	})
}

// SendMessage submits a typed message with the current editor buffer.
func (a *App) SendMessage(text string) (domain.Turn, error) {
	if err := a.requireReady(); err != nil {
		return domain.Turn{}, err
	}
	reply, err := a.services.Tutor.Send(a.ctx, text)
	return reply, a.report(err)
}

// TranscribeAudio sends a base64 WAV recorded by the webview.
func (a *App) TranscribeAudio(encoded string) (domain.Turn, error) {
	if err := a.requireReady(); err != nil {
		return domain.Turn{}, err
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("invalid audio payload: %w", err)
	}
	reply, err := a.services.Tutor.TranscribeAndSend(a.ctx, audio)
	return reply, a.report(err)
}

// StartRecording begins native microphone capture.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Recorder.Start(a.ctx); err != nil {
		return a.GetStatus(), err
	}
	return a.GetStatus(), nil
}

// StopRecording ends capture and sends the transcript.
func (a *App) StopRecording() (domain.Turn, error) {
	if err := a.requireReady(); err != nil {
		return domain.Turn{}, err
	}
	reply, err := a.services.Recorder.Stop(a.ctx)
	return reply, a.report(err)
}

// AbortRecording discards an in-progress capture.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Recorder.Abort(); err != nil && !errors.Is(err, domain.ErrNoActiveRecording) {
		return a.report(err)
	}
	return nil
}

func (a *App) SetCode(code string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Tutor.SetCode(code)
	return nil
}

func (a *App) GetCode() string {
	if a.services == nil {
		return domain.DefaultCode
	}
	return a.services.Tutor.Code()
}

// SetQuestion starts a new conversation from free-form question text.
func (a *App) SetQuestion(text string) ([]domain.Turn, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	a.services.Tutor.SetQuestion(text)
	return a.services.Tutor.Conversation(), nil
}

// ChooseQuestion loads a bank question and its starter code.
func (a *App) ChooseQuestion(id string) (domain.Question, error) {
	if err := a.requireReady(); err != nil {
		return domain.Question{}, err
	}
	question, err := a.services.Tutor.ChooseQuestion(id)
	return question, a.report(err)
}

func (a *App) ListQuestions() []domain.Question {
	if a.services == nil {
		return nil
	}
	return a.services.Questions.List()
}

// PlaySelection toggles playback of the selected text.
func (a *App) PlaySelection(selection string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.report(a.services.Playback.Toggle(a.ctx, selection))
}

// SpeakMessage plays one conversation turn aloud.
func (a *App) SpeakMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.report(a.services.Playback.Speak(a.ctx, text))
}

func (a *App) StopPlayback() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Playback.Stop()
}

// GetSettings returns the stored preferences.
func (a *App) GetSettings() domain.Preferences {
	if a.services == nil {
		return domain.Preferences{}
	}
	return a.services.Preferences.Current()
}

// SaveSettings persists the API key and autoplay flag.
func (a *App) SaveSettings(prefs domain.Preferences) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Preferences.Save(prefs); err != nil {
		a.SessionError(domain.ErrorCodePreferences, err.Error())
		return err
	}
	return nil
}

func (a *App) GetConversation() []domain.Turn {
	if a.services == nil {
		return []domain.Turn{domain.SeedTurn()}
	}
	return a.services.Tutor.Conversation()
}

func (a *App) ResetConversation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Tutor.Reset()
	return nil
}

// GetStatus returns a snapshot for a freshly attached UI.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		status := domain.Status{Playback: domain.PlaybackState{Phase: domain.PlaybackIdle}, Recorder: domain.RecorderIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return domain.Status{
		Busy:     a.services.Tutor.Busy(),
		Playback: a.services.Playback.State(),
		Recorder: a.services.Recorder.Status(),
		Ready:    a.services.Preferences.HasCredential(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// report drops silent errors and surfaces the ones the use cases do not
// already emit.
func (a *App) report(err error) error {
	if err == nil || errors.Is(err, domain.ErrEmptyInput) || usecase.IsSuperseded(err) {
		return nil
	}
	switch code := domain.ErrorCodeFor(err); code {
	case "", domain.ErrorCodeGateway:
	default:
		a.SessionError(code, err.Error())
	}
	return err
}

// ConversationChanged emits the display projection.
func (a *App) ConversationChanged(display []domain.Turn) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConversation, display)
}

// LoadingChanged emits one of the UI loading flags.
func (a *App) LoadingChanged(kind domain.LoadingKind, loading bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLoading, map[string]any{
		"kind":    string(kind),
		"loading": loading,
	})
}

// PlaybackStateChanged drives the play button and the avatar animation.
func (a *App) PlaybackStateChanged(state domain.PlaybackState) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPlayback, state)
}

// PendingInputChanged fills the chat input with a transcript.
func (a *App) PendingInputChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPendingInput, map[string]string{"text": text})
}

func (a *App) QuestionChanged(question string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventQuestion, map[string]string{"question": question})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMissingCredential:
		return "Add your OpenAI API key in settings"
	case domain.ErrorCodeGateway:
		return "The tutor service is unavailable"
	case domain.ErrorCodePlayback:
		return "Audio playback failed"
	case domain.ErrorCodeSelectionEmpty:
		return "Please select some text to play"
	case domain.ErrorCodeBusy:
		return "Clara is still replying"
	case domain.ErrorCodeAudioCapture:
		return "Microphone issue"
	case domain.ErrorCodePreferences:
		return "Settings could not be saved"
	case domain.ErrorCodeQuestion:
		return "Question not found"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
