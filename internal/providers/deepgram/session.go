package deepgram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

// streamingSession writes one recording to an open listen socket and
// collects the results until Deepgram closes the stream.
type streamingSession struct {
	conn       *websocket.Conn
	aggregator *transcriptAggregator
	done       chan struct{}
	wg         sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func startSession(ctx context.Context, conn *websocket.Conn, audio []byte, chunkSize int) *streamingSession {
	s := &streamingSession{
		conn:       conn,
		aggregator: newTranscriptAggregator(),
		done:       make(chan struct{}),
	}

	s.wg.Add(2)
	go s.writeLoop(audio, chunkSize)
	go s.readLoop()

	go func() {
		s.wg.Wait()
		s.close()
		close(s.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			s.close()
		case <-s.done:
		}
	}()
	return s
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Transcript() string {
	return s.aggregator.Raw()
}

func (s *streamingSession) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop(audio []byte, chunkSize int) {
	defer s.wg.Done()

	for start := 0; start < len(audio); start += chunkSize {
		end := min(start+chunkSize, len(audio))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response listenResponse
		if err := sonic.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			s.close()
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		s.aggregator.Add(transcript, response.IsFinal || response.SpeechFinal)
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}
