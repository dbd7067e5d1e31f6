package deepgram

import (
	"strings"
	"sync"
)

// transcriptAggregator joins final segments, falling back to the last
// partial when nothing was finalised.
type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(text string, final bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSpoken = text
	if final {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}
	return joined
}
