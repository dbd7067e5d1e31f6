package tui

import (
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"upitquest/internal/domain"
)

func TestSinkDropsEventsBeforeAttach(t *testing.T) {
	t.Parallel()

	sink := NewSink()
	sink.ConversationChanged([]domain.Turn{domain.SeedTurn()})
	sink.SessionError(domain.ErrorCodeGateway, "offline")
}

func TestSinkForwardsEventsAsMessages(t *testing.T) {
	t.Parallel()

	var got []tea.Msg
	sink := NewSink()
	sink.attach(func(msg tea.Msg) { got = append(got, msg) })

	turns := []domain.Turn{domain.SeedTurn()}
	state := domain.PlaybackState{Phase: domain.PlaybackPlaying, Talking: true}
	sink.ConversationChanged(turns)
	sink.LoadingChanged(domain.LoadingSpeech, true)
	sink.PlaybackStateChanged(state)
	sink.PendingInputChanged("transcript")
	sink.QuestionChanged("<p>q</p>")
	sink.SessionError(domain.ErrorCodeBusy, "wait")

	want := []tea.Msg{
		ConversationMsg{Turns: turns},
		LoadingMsg{Kind: domain.LoadingSpeech, Loading: true},
		PlaybackMsg{State: state},
		PendingInputMsg{Text: "transcript"},
		QuestionMsg{Question: "<p>q</p>"},
		ErrorMsg{Code: domain.ErrorCodeBusy, Detail: "wait"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("messages = %#v, want %#v", got, want)
	}
}
