package domain

// Role tags the speaker of a conversation turn.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleQuestion  Role = "question"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAssistant, RoleUser, RoleSystem, RoleQuestion:
		return true
	default:
		return false
	}
}

// Turn is one entry of the conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// WelcomeText seeds every fresh conversation.
const WelcomeText = "Hi, I'm Clara. Welcome to Up It Quest! An AI interview preparation platform!"

// SeedTurn returns the assistant greeting every conversation starts with.
func SeedTurn() Turn {
	return Turn{Role: RoleAssistant, Content: WelcomeText}
}

// DefaultCode is the editor buffer before any question is chosen.
const DefaultCode = `#include <iostream>

using namespace std;

int main() {
  cout << "Hello, World!";
  return 0;
}`

// Question is a coding interview prompt with the code the editor starts from.
type Question struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Prompt  string `yaml:"prompt" json:"prompt"`
	Starter string `yaml:"starter" json:"starter"`
}

// Preferences are the durable per-user settings.
type Preferences struct {
	APIKey   string `json:"apiKey"`
	AutoPlay bool   `json:"autoPlay"`
}

// PlaybackPhase models the speech playback lifecycle.
type PlaybackPhase string

const (
	PlaybackIdle    PlaybackPhase = "idle"
	PlaybackLoading PlaybackPhase = "loading"
	PlaybackPlaying PlaybackPhase = "playing"
)

// PlaybackState is the transient state owned by the playback controller.
type PlaybackState struct {
	Phase   PlaybackPhase `json:"phase"`
	Talking bool          `json:"talking"`
}

// IsPlaying reports whether audio is currently audible.
func (s PlaybackState) IsPlaying() bool {
	return s.Phase == PlaybackPlaying
}

// LoadingKind identifies which asynchronous UI flag changed.
type LoadingKind string

const (
	LoadingChat          LoadingKind = "chat"
	LoadingSpeech        LoadingKind = "speech"
	LoadingTranscription LoadingKind = "transcription"
	LoadingRecording     LoadingKind = "recording"
)

// RecorderState models the microphone capture lifecycle.
type RecorderState string

const (
	RecorderIdle         RecorderState = "idle"
	RecorderRecording    RecorderState = "recording"
	RecorderTranscribing RecorderState = "transcribing"
)

// ErrorCode identifies user-visible backend errors.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeMissingCredential ErrorCode = "missing_credential"
	ErrorCodeGateway           ErrorCode = "gateway"
	ErrorCodePlayback          ErrorCode = "playback"
	ErrorCodeSelectionEmpty    ErrorCode = "selection_empty"
	ErrorCodeBusy              ErrorCode = "busy"
	ErrorCodeAudioCapture      ErrorCode = "audio_capture"
	ErrorCodePreferences       ErrorCode = "preferences"
	ErrorCodeQuestion          ErrorCode = "question"
)

// Status summarizes the backend for a freshly attached surface.
type Status struct {
	Busy     bool          `json:"busy"`
	Playback PlaybackState `json:"playback"`
	Recorder RecorderState `json:"recorder"`
	Ready    bool          `json:"ready"`
	Message  string        `json:"message,omitempty"`
}
