package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

// pumpAudioChunks drains the capture into buf until EOF.
func pumpAudioChunks(
	audio io.Reader,
	buf *bytes.Buffer,
	chunkSize int,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	chunk := make([]byte, chunkSize)
	for {
		n, err := audio.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				events.SessionError(domain.ErrorCodeAudioCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
