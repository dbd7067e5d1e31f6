package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"upitquest/internal/domain"
)

func assistant(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleAssistant, Content: text}
}

func TestSendAppendsTurnsAndSendsWireProjection(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{reply: assistant("What is the complexity?")}
	events := &fakeEventSink{}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, events)
	tutor.SetCode("int main() {}")

	reply, err := tutor.Send(context.Background(), "I would use a hash map")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if reply.Content != "What is the complexity?" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	display := tutor.Conversation()
	want := []domain.Turn{
		domain.SeedTurn(),
		{Role: domain.RoleUser, Content: "I would use a hash map"},
		assistant("What is the complexity?"),
	}
	if len(display) != len(want) {
		t.Fatalf("unexpected display: %+v", display)
	}
	for i := range want {
		if display[i] != want[i] {
			t.Fatalf("display[%d] = %+v, want %+v", i, display[i], want[i])
		}
	}

	requests := gateway.chatRequests()
	if len(requests) != 1 || len(requests[0]) != 2 {
		t.Fatalf("unexpected chat requests: %+v", requests)
	}
	if got := requests[0][1].Content; got != "message: I would use a hash map \n code: int main() {}" {
		t.Fatalf("unexpected wire text: %q", got)
	}

	loading := events.snapshotLoading()
	if len(loading) != 2 || loading[0] != (loadingEvent{domain.LoadingChat, true}) || loading[1] != (loadingEvent{domain.LoadingChat, false}) {
		t.Fatalf("unexpected loading events: %+v", loading)
	}
	if len(events.lastConversation()) != 3 {
		t.Fatalf("expected final conversation event with reply")
	}
	if tutor.Busy() {
		t.Fatalf("expected tutor idle after send")
	}
}

func TestSendRejectsBlankInputWithoutSideEffects(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{}
	events := &fakeEventSink{}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, events)

	if _, err := tutor.Send(context.Background(), " \n\t"); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if len(gateway.chatRequests()) != 0 || len(tutor.Conversation()) != 1 {
		t.Fatalf("blank input must not reach the gateway or the log")
	}
}

func TestSendRequiresCredential(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{}
	tutor := NewTutor(gateway, newFakePrefs("", false), nil, nil, &fakeEventSink{})

	if _, err := tutor.Send(context.Background(), "hello"); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if len(gateway.chatRequests()) != 0 {
		t.Fatalf("expected no gateway call without a key")
	}
}

func TestSendGatewayFailureSurfacesError(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{chatErr: &domain.GatewayError{Op: "complete chat", StatusCode: 500, Err: errors.New("boom")}}
	events := &fakeEventSink{}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, events)

	if _, err := tutor.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected gateway error")
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeGateway || !strings.Contains(errs[0].detail, "boom") {
		t.Fatalf("expected gateway error event, got %+v", errs)
	}
	if tutor.Busy() {
		t.Fatalf("expected tutor idle after failure")
	}
	loading := events.snapshotLoading()
	if last := loading[len(loading)-1]; last.loading {
		t.Fatalf("expected chat loading cleared")
	}
}

func TestSendRefusesOverlappingRequests(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	gateway := &fakeGateway{reply: assistant("first reply"), chatGate: gate}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, &fakeEventSink{})

	done := make(chan error, 1)
	go func() {
		_, err := tutor.Send(context.Background(), "first")
		done <- err
	}()
	if !waitFor(tutor.Busy) {
		t.Fatalf("first send never started")
	}

	if _, err := tutor.Send(context.Background(), "second"); !errors.Is(err, domain.ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	display := tutor.Conversation()
	if len(display) != 3 || display[1].Content != "first" || display[2].Content != "first reply" {
		t.Fatalf("unexpected conversation: %+v", display)
	}
}

func TestSendAutoplaysReplyWhenEnabled(t *testing.T) {
	t.Parallel()

	speaker := newFakeSpeaker()
	tutor := NewTutor(&fakeGateway{reply: assistant("Nice work.")}, newFakePrefs("sk-test", true), speaker, nil, &fakeEventSink{})

	if _, err := tutor.Send(context.Background(), "done"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case text := <-speaker.texts:
		if text != "Nice work." {
			t.Fatalf("unexpected autoplay text %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected reply to be spoken")
	}
}

func TestSendSkipsAutoplayWhenDisabled(t *testing.T) {
	t.Parallel()

	speaker := newFakeSpeaker()
	tutor := NewTutor(&fakeGateway{reply: assistant("Nice work.")}, newFakePrefs("sk-test", false), speaker, nil, &fakeEventSink{})

	if _, err := tutor.Send(context.Background(), "done"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case text := <-speaker.texts:
		t.Fatalf("unexpected autoplay of %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranscribeAndSendPublishesPendingInput(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{transcript: "sort then scan", reply: assistant("Why sort?")}
	events := &fakeEventSink{}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, events)

	reply, err := tutor.TranscribeAndSend(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("transcribe and send failed: %v", err)
	}
	if reply.Content != "Why sort?" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(events.pending) != 1 || events.pending[0] != "sort then scan" {
		t.Fatalf("expected transcript published as pending input, got %v", events.pending)
	}
	if display := tutor.Conversation(); display[1].Content != "sort then scan" {
		t.Fatalf("expected transcript sent verbatim, got %+v", display)
	}

	loading := events.snapshotLoading()
	if loading[0] != (loadingEvent{domain.LoadingTranscription, true}) || loading[1] != (loadingEvent{domain.LoadingTranscription, false}) {
		t.Fatalf("unexpected loading events: %+v", loading)
	}
}

func TestTranscribeAndSendFailure(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{transcribeErr: &domain.GatewayError{Op: "transcribe speech", Err: errors.New("bad audio")}}
	events := &fakeEventSink{}
	tutor := NewTutor(gateway, newFakePrefs("sk-test", false), nil, nil, events)

	if _, err := tutor.TranscribeAndSend(context.Background(), []byte("RIFF")); err == nil {
		t.Fatalf("expected error")
	}
	if len(gateway.chatRequests()) != 0 {
		t.Fatalf("expected no chat request after failed transcription")
	}
	if errs := events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeGateway {
		t.Fatalf("expected gateway error event, got %+v", errs)
	}
}

func TestSetQuestionReplacesConversation(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	tutor := NewTutor(&fakeGateway{reply: assistant("ok")}, newFakePrefs("sk-test", false), nil, nil, events)
	if _, err := tutor.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	tutor.SetQuestion("Reverse a linked list.")

	display := tutor.Conversation()
	if len(display) != 1 || display[0] != assistant("Reverse a linked list.") {
		t.Fatalf("expected only the question, got %+v", display)
	}
	if tutor.Question() != "Reverse a linked list." {
		t.Fatalf("unexpected question %q", tutor.Question())
	}
	if len(events.questions) != 1 || events.questions[0] != "Reverse a linked list." {
		t.Fatalf("expected question event, got %v", events.questions)
	}
}

func TestReplyForReplacedConversationIsDiscarded(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	tutor := NewTutor(&fakeGateway{reply: assistant("late"), chatGate: gate}, newFakePrefs("sk-test", false), nil, nil, &fakeEventSink{})

	done := make(chan error, 1)
	go func() {
		_, err := tutor.Send(context.Background(), "hello")
		done <- err
	}()
	if !waitFor(tutor.Busy) {
		t.Fatalf("send never started")
	}
	tutor.SetQuestion("Two Sum")
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if display := tutor.Conversation(); len(display) != 1 || display[0].Content != "Two Sum" {
		t.Fatalf("late reply leaked into new conversation: %+v", display)
	}
}

func TestChooseQuestionLoadsStarterCode(t *testing.T) {
	t.Parallel()

	bank := fakeQuestionBank{
		"two-sum": {ID: "two-sum", Title: "Two Sum", Prompt: "<p>Two Sum</p>", Starter: "vector<int> twoSum();"},
	}
	tutor := NewTutor(&fakeGateway{}, newFakePrefs("sk-test", false), nil, bank, &fakeEventSink{})

	q, err := tutor.ChooseQuestion("two-sum")
	if err != nil {
		t.Fatalf("choose failed: %v", err)
	}
	if q.Title != "Two Sum" {
		t.Fatalf("unexpected question: %+v", q)
	}
	if tutor.Code() != "vector<int> twoSum();" {
		t.Fatalf("expected starter code, got %q", tutor.Code())
	}
	if display := tutor.Conversation(); len(display) != 1 || display[0].Content != "<p>Two Sum</p>" {
		t.Fatalf("unexpected conversation: %+v", display)
	}

	if _, err := tutor.ChooseQuestion("missing"); !errors.Is(err, domain.ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestResetRestoresSeedAndDefaultState(t *testing.T) {
	t.Parallel()

	tutor := NewTutor(&fakeGateway{reply: assistant("ok")}, newFakePrefs("sk-test", false), nil, nil, &fakeEventSink{})
	if tutor.Code() != domain.DefaultCode {
		t.Fatalf("expected default editor buffer")
	}
	tutor.SetQuestion("q")
	tutor.Reset()

	display := tutor.Conversation()
	if len(display) != 1 || display[0] != domain.SeedTurn() {
		t.Fatalf("expected seed only, got %+v", display)
	}
	if tutor.Question() != "" {
		t.Fatalf("expected question cleared")
	}
}

func TestSetQuestionRacingSendNeverSplitsExchange(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		tutor := NewTutor(&fakeGateway{reply: assistant("reply")}, newFakePrefs("sk-test", false), nil, nil, &fakeEventSink{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = tutor.Send(context.Background(), "hello")
		}()
		go func() {
			defer wg.Done()
			tutor.SetQuestion("Two Sum")
		}()
		wg.Wait()

		display := tutor.Conversation()
		if len(display) == 0 || display[0].Content != "Two Sum" {
			t.Fatalf("run %d: question is not the opening turn %+v", i, display)
		}
		switch len(display) {
		case 1:
		case 3:
			if display[1].Role != domain.RoleUser || display[2].Content != "reply" {
				t.Fatalf("run %d: unexpected exchange %+v", i, display)
			}
		default:
			t.Fatalf("run %d: partial exchange in new conversation %+v", i, display)
		}
	}
}
