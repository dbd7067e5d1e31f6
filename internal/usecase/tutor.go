package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"upitquest/internal/conversation"
	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

const scopeName = "upitquest/internal/usecase"

var logger = otelslog.NewLogger(scopeName)

// TutorGateway is the subset of the gateway the tutor calls directly.
type TutorGateway interface {
	ports.ChatCompleter
	ports.SpeechTranscriber
}

// Tutor runs the send path: conversation log, completion round trip and
// autoplay hand-off. One completion may be pending at a time.
type Tutor struct {
	gateway   TutorGateway
	prefs     ports.PreferenceSource
	speaker   ports.Speaker
	questions ports.QuestionBank
	events    ports.EventSink
	log       *conversation.Model

	mu       sync.Mutex
	code     string
	question string
	inFlight bool
	epoch    uint64
}

func NewTutor(
	gateway TutorGateway,
	prefs ports.PreferenceSource,
	speaker ports.Speaker,
	questions ports.QuestionBank,
	events ports.EventSink,
) *Tutor {
	return &Tutor{
		gateway:   gateway,
		prefs:     prefs,
		speaker:   speaker,
		questions: questions,
		events:    events,
		log:       conversation.New(domain.SeedTurn()),
		code:      domain.DefaultCode,
	}
}

// Send submits a candidate message with the current editor buffer and
// returns the tutor's reply.
func (t *Tutor) Send(ctx context.Context, text string) (domain.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Turn{}, domain.ErrEmptyInput
	}
	apiKey := t.prefs.Current().APIKey
	if strings.TrimSpace(apiKey) == "" {
		return domain.Turn{}, domain.ErrMissingCredential
	}

	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return domain.Turn{}, domain.ErrRequestInFlight
	}
	// The user turn, the request and the epoch are taken together so a
	// concurrent SetQuestion or Reset lands entirely before or after them.
	if err := t.log.AppendUser(text, t.code); err != nil {
		t.mu.Unlock()
		return domain.Turn{}, err
	}
	t.inFlight = true
	epoch := t.epoch
	wire := t.log.Wire()
	display := t.log.Display()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
	}()

	t.events.ConversationChanged(display)

	t.events.LoadingChanged(domain.LoadingChat, true)
	reply, err := t.gateway.CompleteChat(ctx, apiKey, wire)
	t.events.LoadingChanged(domain.LoadingChat, false)
	if err != nil {
		t.events.SessionError(errorCodeOr(err, domain.ErrorCodeGateway), err.Error())
		return domain.Turn{}, err
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		logger.Info("discarding reply for a replaced conversation")
		return reply, nil
	}
	t.log.AppendAssistant(reply)
	display = t.log.Display()
	t.mu.Unlock()

	t.events.ConversationChanged(display)

	if t.speaker != nil && t.prefs.Current().AutoPlay {
		go t.autoplay(context.WithoutCancel(ctx), reply.Content)
	}
	return reply, nil
}

func (t *Tutor) autoplay(ctx context.Context, text string) {
	if err := t.speaker.Speak(ctx, text); err != nil && !IsSuperseded(err) {
		logger.Warn("autoplay failed", "error", err)
	}
}

// TranscribeAndSend transcribes a WAV recording, publishes the transcript as
// the pending input and sends exactly that text.
func (t *Tutor) TranscribeAndSend(ctx context.Context, audio []byte) (domain.Turn, error) {
	if len(audio) == 0 {
		return domain.Turn{}, domain.ErrEmptyInput
	}
	apiKey := t.prefs.Current().APIKey
	if strings.TrimSpace(apiKey) == "" {
		return domain.Turn{}, domain.ErrMissingCredential
	}

	t.events.LoadingChanged(domain.LoadingTranscription, true)
	transcript, err := t.gateway.TranscribeSpeech(ctx, apiKey, audio)
	t.events.LoadingChanged(domain.LoadingTranscription, false)
	if err != nil {
		t.events.SessionError(errorCodeOr(err, domain.ErrorCodeGateway), err.Error())
		return domain.Turn{}, err
	}

	t.events.PendingInputChanged(transcript)
	return t.Send(ctx, transcript)
}

func (t *Tutor) SetCode(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.code = code
}

func (t *Tutor) Code() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

// SetQuestion replaces the conversation with the question as its only turn.
func (t *Tutor) SetQuestion(text string) {
	t.mu.Lock()
	t.log.SetQuestion(text)
	t.question = text
	t.epoch++
	display := t.log.Display()
	t.mu.Unlock()

	t.events.QuestionChanged(text)
	t.events.ConversationChanged(display)
}

// ChooseQuestion sets a bank question and loads its starter code.
func (t *Tutor) ChooseQuestion(id string) (domain.Question, error) {
	if t.questions == nil {
		return domain.Question{}, fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, id)
	}
	question, ok := t.questions.Get(id)
	if !ok {
		return domain.Question{}, fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, id)
	}

	t.SetQuestion(question.Prompt)
	if question.Starter != "" {
		t.SetCode(question.Starter)
	}
	return question, nil
}

// Reset returns to the seeded conversation with no question.
func (t *Tutor) Reset() {
	t.mu.Lock()
	t.log.Reset()
	t.question = ""
	t.epoch++
	display := t.log.Display()
	t.mu.Unlock()

	t.events.QuestionChanged("")
	t.events.ConversationChanged(display)
}

// Conversation returns the display projection.
func (t *Tutor) Conversation() []domain.Turn {
	return t.log.Display()
}

func (t *Tutor) Question() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.question
}

// Busy reports whether a completion is pending.
func (t *Tutor) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}
