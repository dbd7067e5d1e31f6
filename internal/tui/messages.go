package tui

import "upitquest/internal/domain"

// ConversationMsg carries a new display projection of the conversation.
type ConversationMsg struct {
	Turns []domain.Turn
}

// LoadingMsg toggles one of the loading indicators.
type LoadingMsg struct {
	Kind    domain.LoadingKind
	Loading bool
}

// PlaybackMsg reports the playback phase and the avatar animation frame.
type PlaybackMsg struct {
	State domain.PlaybackState
}

// PendingInputMsg fills the input line with a transcript before it is sent.
type PendingInputMsg struct {
	Text string
}

// QuestionMsg replaces the question pane.
type QuestionMsg struct {
	Question string
}

// ErrorMsg is a backend error meant for the status line.
type ErrorMsg struct {
	Code   domain.ErrorCode
	Detail string
}

// actionDoneMsg completes a command started from the input line.
type actionDoneMsg struct {
	notice string
	err    error
}

// codeLoadedMsg reports the starter code of a chosen question.
type codeLoadedMsg struct {
	question domain.Question
}
