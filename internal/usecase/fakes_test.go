package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

type fakePrefs struct {
	mu    sync.Mutex
	prefs domain.Preferences
}

func newFakePrefs(key string, autoPlay bool) *fakePrefs {
	return &fakePrefs{prefs: domain.Preferences{APIKey: key, AutoPlay: autoPlay}}
}

func (f *fakePrefs) Current() domain.Preferences {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs
}

type fakeGateway struct {
	mu sync.Mutex

	reply     domain.Turn
	chatErr   error
	chatGate  chan struct{}
	chatCalls [][]domain.Turn

	audio       []byte
	speechErr   error
	speechGates []chan struct{}
	spoken      []string

	transcript    string
	transcribeErr error
	uploads       [][]byte
}

func (f *fakeGateway) CompleteChat(ctx context.Context, _ string, messages []domain.Turn) (domain.Turn, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, append([]domain.Turn(nil), messages...))
	gate := f.chatGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Turn{}, ctx.Err()
		}
	}
	return f.reply, f.chatErr
}

func (f *fakeGateway) SynthesizeSpeech(ctx context.Context, _ string, text string) ([]byte, error) {
	f.mu.Lock()
	call := len(f.spoken)
	f.spoken = append(f.spoken, text)
	var gate chan struct{}
	if call < len(f.speechGates) {
		gate = f.speechGates[call]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.speechErr != nil {
		return nil, f.speechErr
	}
	return f.audio, nil
}

func (f *fakeGateway) TranscribeSpeech(_ context.Context, _ string, audio []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, append([]byte(nil), audio...))
	return f.transcript, f.transcribeErr
}

func (f *fakeGateway) chatRequests() [][]domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.Turn(nil), f.chatCalls...)
}

func (f *fakeGateway) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakePlayer struct {
	mu       sync.Mutex
	sessions []*fakePlaybackSession
	volumes  []float64
	err      error
}

func (f *fakePlayer) Play(audio []byte, volume float64) (ports.PlaybackSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	session := &fakePlaybackSession{audio: audio, done: make(chan struct{})}
	f.sessions = append(f.sessions, session)
	f.volumes = append(f.volumes, volume)
	return session, nil
}

func (f *fakePlayer) last() *fakePlaybackSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakePlaybackSession struct {
	audio     []byte
	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	stopCalls int
}

func (f *fakePlaybackSession) Done() <-chan struct{} { return f.done }

func (f *fakePlaybackSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.finish()
	return nil
}

// finish simulates the clip reaching its end.
func (f *fakePlaybackSession) finish() {
	f.once.Do(func() { close(f.done) })
}

func (f *fakePlaybackSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type prefixNormalizer struct{}

func (prefixNormalizer) Normalize(text string) string {
	return "spoken: " + text
}

type fakeSpeaker struct {
	texts chan string
	err   error
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{texts: make(chan string, 4)}
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.texts <- text
	return f.err
}

type fakeQuestionBank map[string]domain.Question

func (f fakeQuestionBank) Get(id string) (domain.Question, bool) {
	q, ok := f[id]
	return q, ok
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
	configs  []ports.AudioConfig
}

func (f *fakeAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu         sync.Mutex
	chunks     [][]byte
	index      int
	stopCalls  int
	closeCalls int
	stopErr    error
	readErr    error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

type fakeSender struct {
	mu    sync.Mutex
	audio [][]byte
	reply domain.Turn
	err   error
}

func (f *fakeSender) TranscribeAndSend(_ context.Context, audio []byte) (domain.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return f.reply, f.err
}

type loadingEvent struct {
	kind    domain.LoadingKind
	loading bool
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	conversations [][]domain.Turn
	loading       []loadingEvent
	playback      []domain.PlaybackState
	pending       []string
	questions     []string
	errors        []errEvent
}

func (f *fakeEventSink) ConversationChanged(display []domain.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = append(f.conversations, display)
}

func (f *fakeEventSink) LoadingChanged(kind domain.LoadingKind, loading bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = append(f.loading, loadingEvent{kind: kind, loading: loading})
}

func (f *fakeEventSink) PlaybackStateChanged(state domain.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = append(f.playback, state)
}

func (f *fakeEventSink) PendingInputChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, text)
}

func (f *fakeEventSink) QuestionChanged(question string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotLoading() []loadingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]loadingEvent(nil), f.loading...)
}

func (f *fakeEventSink) snapshotPlayback() []domain.PlaybackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PlaybackState(nil), f.playback...)
}

func (f *fakeEventSink) lastConversation() []domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conversations) == 0 {
		return nil
	}
	return f.conversations[len(f.conversations)-1]
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
