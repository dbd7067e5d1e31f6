package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

func TestRecorderStartStopSendsWAV(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("ab"), []byte("cd")}}
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{session}}
	sender := &fakeSender{reply: assistant("heard you")}
	events := &fakeEventSink{}
	recorder := NewRecorder(capture, sender, events, RecorderConfig{
		Audio:     ports.AudioConfig{SampleRate: 16000, Channels: 1, InputFormat: "pulse", InputDevice: "default"},
		ChunkSize: 512,
	})

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if recorder.Status() != domain.RecorderRecording {
		t.Fatalf("expected recording, got %s", recorder.Status())
	}

	reply, err := recorder.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if reply.Content != "heard you" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if recorder.Status() != domain.RecorderIdle {
		t.Fatalf("expected idle after stop, got %s", recorder.Status())
	}

	if len(sender.audio) != 1 {
		t.Fatalf("expected one upload, got %d", len(sender.audio))
	}
	wav := sender.audio[0]
	if !bytes.HasPrefix(wav, []byte("RIFF")) || !bytes.HasSuffix(wav, []byte("abcd")) || len(wav) != 44+4 {
		t.Fatalf("unexpected wav payload: %q", wav)
	}
	if session.stopCalls != 1 || session.closeCalls != 1 {
		t.Fatalf("expected capture stopped and closed, got stop=%d close=%d", session.stopCalls, session.closeCalls)
	}

	loading := events.snapshotLoading()
	if len(loading) != 2 || loading[0] != (loadingEvent{domain.LoadingRecording, true}) || loading[1] != (loadingEvent{domain.LoadingRecording, false}) {
		t.Fatalf("unexpected loading events: %+v", loading)
	}
}

func TestRecorderStopWithoutRecording(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder(&fakeAudioCapture{}, &fakeSender{}, &fakeEventSink{}, RecorderConfig{})
	if _, err := recorder.Stop(context.Background()); !errors.Is(err, domain.ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
	if err := recorder.Abort(); !errors.Is(err, domain.ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
}

func TestRecorderStopWithSilenceSkipsUpload(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	recorder := NewRecorder(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		sender,
		&fakeEventSink{},
		RecorderConfig{},
	)
	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := recorder.Stop(context.Background()); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if len(sender.audio) != 0 {
		t.Fatalf("expected no upload")
	}
}

func TestRecorderAbortDiscardsCapture(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	sender := &fakeSender{}
	events := &fakeEventSink{}
	recorder := NewRecorder(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, sender, events, RecorderConfig{})

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := recorder.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if len(sender.audio) != 0 {
		t.Fatalf("expected no upload after abort")
	}
	if recorder.Status() != domain.RecorderIdle || session.stopCalls != 1 {
		t.Fatalf("expected idle with capture stopped")
	}
	loading := events.snapshotLoading()
	if last := loading[len(loading)-1]; last != (loadingEvent{domain.LoadingRecording, false}) {
		t.Fatalf("expected recording flag cleared, got %+v", loading)
	}
}

func TestRecorderRestartDiscardsPreviousCapture(t *testing.T) {
	t.Parallel()

	first := &fakeAudioSession{chunks: [][]byte{[]byte("old")}}
	second := &fakeAudioSession{chunks: [][]byte{[]byte("new")}}
	sender := &fakeSender{}
	events := &fakeEventSink{}
	recorder := NewRecorder(&fakeAudioCapture{sessions: []ports.AudioSession{first, second}}, sender, events, RecorderConfig{})

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if first.stopCalls != 1 {
		t.Fatalf("expected previous capture stopped")
	}
	if _, err := recorder.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(sender.audio) != 1 || !bytes.HasSuffix(sender.audio[0], []byte("new")) {
		t.Fatalf("expected only the newest capture uploaded")
	}
	if got := len(events.snapshotLoading()); got != 2 {
		t.Fatalf("expected recording flag raised once and cleared once, got %d events", got)
	}
}

// gatedCapture holds its first Start until release is closed.
type gatedCapture struct {
	fakeAudioCapture
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeAudioCapture.Start(ctx, cfg)
}

func TestRecorderOverlappingStartsKeepOneCapture(t *testing.T) {
	t.Parallel()

	early := &fakeAudioSession{chunks: [][]byte{[]byte("early")}}
	late := &fakeAudioSession{chunks: [][]byte{[]byte("late")}}
	capture := &gatedCapture{
		fakeAudioCapture: fakeAudioCapture{sessions: []ports.AudioSession{early, late}},
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	sender := &fakeSender{}
	events := &fakeEventSink{}
	recorder := NewRecorder(capture, sender, events, RecorderConfig{})

	slow := make(chan error, 1)
	go func() { slow <- recorder.Start(context.Background()) }()
	<-capture.entered

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	close(capture.release)
	if err := <-slow; err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	early.mu.Lock()
	earlyStops := early.stopCalls
	early.mu.Unlock()
	if earlyStops != 1 {
		t.Fatalf("expected the superseded capture stopped once, got %d", earlyStops)
	}
	if _, err := recorder.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(sender.audio) != 1 || !bytes.HasSuffix(sender.audio[0], []byte("late")) {
		t.Fatalf("expected only the surviving capture uploaded")
	}
	if got := len(events.snapshotLoading()); got != 2 {
		t.Fatalf("expected recording flag raised once and cleared once, got %d events", got)
	}
}

func TestRecorderStartFailureReportsCaptureError(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	recorder := NewRecorder(&fakeAudioCapture{err: errors.New("no microphone")}, &fakeSender{}, events, RecorderConfig{})

	if err := recorder.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if recorder.Status() != domain.RecorderIdle {
		t.Fatalf("expected idle after failed start")
	}
	if errs := events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioCapture {
		t.Fatalf("expected audio capture error event, got %+v", errs)
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}, readErr: errors.New("device unplugged")}
	events := &fakeEventSink{}
	var buf bytes.Buffer
	done := make(chan struct{})

	go pumpAudioChunks(session, &buf, 256, events, done)
	<-done

	if buf.String() != "abc" {
		t.Fatalf("expected captured bytes kept, got %q", buf.String())
	}
	if errs := events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioCapture {
		t.Fatalf("expected audio capture error, got %+v", errs)
	}
}
