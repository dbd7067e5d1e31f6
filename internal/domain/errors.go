package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput marks a blank submission; surfaces drop it silently.
	ErrEmptyInput = errors.New("input is empty")
	// ErrMissingCredential blocks every gateway call until a key is configured.
	ErrMissingCredential = errors.New("no API key configured")
	// ErrSelectionEmpty is returned when playback of a selection is requested with nothing selected.
	ErrSelectionEmpty = errors.New("no text selected")
	// ErrRequestInFlight rejects a send while a previous completion is pending.
	ErrRequestInFlight = errors.New("a reply is still pending")
	// ErrUnknownQuestion is returned when a question id is not in the bank.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrNoActiveRecording is returned by stop or abort when nothing is being captured.
	ErrNoActiveRecording = errors.New("no active recording")
	// ErrPlaybackSuperseded is returned to a speak request replaced by a newer one or by a stop.
	ErrPlaybackSuperseded = errors.New("playback request superseded")
)

// GatewayError reports a failed round trip to one of the remote services.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrorCodeFor classifies err for the UI.
func ErrorCodeFor(err error) ErrorCode {
	var gatewayErr *GatewayError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return ErrorCodeMissingCredential
	case errors.Is(err, ErrSelectionEmpty):
		return ErrorCodeSelectionEmpty
	case errors.Is(err, ErrRequestInFlight):
		return ErrorCodeBusy
	case errors.Is(err, ErrUnknownQuestion):
		return ErrorCodeQuestion
	case errors.Is(err, ErrNoActiveRecording):
		return ErrorCodeAudioCapture
	case errors.As(err, &gatewayErr):
		return ErrorCodeGateway
	default:
		return ""
	}
}
