package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

// PlaybackConfig controls the shared audio element and avatar animation.
type PlaybackConfig struct {
	Volume       float64
	TalkInterval time.Duration
}

// PlaybackController owns the single audio output and the talking animation.
// A newer Speak or a Stop supersedes any pending synthesis.
type PlaybackController struct {
	synth      ports.SpeechSynthesizer
	player     ports.AudioPlayer
	normalizer ports.SpeechNormalizer
	prefs      ports.PreferenceSource
	events     ports.EventSink
	cfg        PlaybackConfig

	mu         sync.Mutex
	phase      domain.PlaybackPhase
	talking    bool
	generation uint64
	session    ports.PlaybackSession
	anim       *animation
}

type animation struct {
	ticker *time.Ticker
	done   chan struct{}
}

func NewPlaybackController(
	synth ports.SpeechSynthesizer,
	player ports.AudioPlayer,
	normalizer ports.SpeechNormalizer,
	prefs ports.PreferenceSource,
	events ports.EventSink,
	cfg PlaybackConfig,
) *PlaybackController {
	if math.IsNaN(cfg.Volume) || cfg.Volume < 0 || cfg.Volume > 1 {
		cfg.Volume = 0.5
	}
	if cfg.TalkInterval <= 0 {
		cfg.TalkInterval = 200 * time.Millisecond
	}
	return &PlaybackController{
		synth:      synth,
		player:     player,
		normalizer: normalizer,
		prefs:      prefs,
		events:     events,
		cfg:        cfg,
		phase:      domain.PlaybackIdle,
	}
}

// Speak synthesises text and starts playing it. It returns once playback
// has started, not when it ends.
func (c *PlaybackController) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyInput
	}
	apiKey := c.prefs.Current().APIKey
	if strings.TrimSpace(apiKey) == "" {
		return domain.ErrMissingCredential
	}

	c.mu.Lock()
	previous := c.haltLocked()
	c.generation++
	generation := c.generation
	c.phase = domain.PlaybackLoading
	state := c.stateLocked()
	c.mu.Unlock()

	stopSession(previous)
	c.events.PlaybackStateChanged(state)
	c.events.LoadingChanged(domain.LoadingSpeech, true)

	audio, err := c.synth.SynthesizeSpeech(ctx, apiKey, c.spokenText(text))
	if err != nil {
		if c.settle(generation) {
			c.events.SessionError(errorCodeOr(err, domain.ErrorCodeGateway), err.Error())
			return err
		}
		return domain.ErrPlaybackSuperseded
	}

	if !c.current(generation) {
		return domain.ErrPlaybackSuperseded
	}

	session, err := c.player.Play(audio, c.cfg.Volume)
	if err != nil {
		err = fmt.Errorf("failed to start playback: %w", err)
		if c.settle(generation) {
			c.events.SessionError(domain.ErrorCodePlayback, err.Error())
			return err
		}
		return domain.ErrPlaybackSuperseded
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		stopSession(session)
		return domain.ErrPlaybackSuperseded
	}
	c.session = session
	c.phase = domain.PlaybackPlaying
	c.talking = true
	anim := &animation{ticker: time.NewTicker(c.cfg.TalkInterval), done: make(chan struct{})}
	c.anim = anim
	state = c.stateLocked()
	c.mu.Unlock()

	c.events.PlaybackStateChanged(state)
	c.events.LoadingChanged(domain.LoadingSpeech, false)

	go c.animate(anim)
	go c.watch(generation, session)
	return nil
}

// Stop halts playback and discards any synthesis still loading.
func (c *PlaybackController) Stop() error {
	c.mu.Lock()
	wasLoading := c.phase == domain.PlaybackLoading
	changed := c.phase != domain.PlaybackIdle || c.talking
	session := c.haltLocked()
	c.generation++
	state := c.stateLocked()
	c.mu.Unlock()

	err := stopSession(session)
	if changed {
		c.events.PlaybackStateChanged(state)
	}
	if wasLoading {
		c.events.LoadingChanged(domain.LoadingSpeech, false)
	}
	return err
}

// Toggle stops audible playback, or speaks the selection when idle.
func (c *PlaybackController) Toggle(ctx context.Context, selection string) error {
	if c.State().IsPlaying() {
		return c.Stop()
	}
	if strings.TrimSpace(selection) == "" {
		return domain.ErrSelectionEmpty
	}
	return c.Speak(ctx, selection)
}

// Close releases the audio output and the animation timer.
func (c *PlaybackController) Close() error {
	return c.Stop()
}

func (c *PlaybackController) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *PlaybackController) stateLocked() domain.PlaybackState {
	return domain.PlaybackState{Phase: c.phase, Talking: c.talking}
}

// haltLocked cancels the animation, returns to idle and hands back the
// session the caller must stop outside the lock.
func (c *PlaybackController) haltLocked() ports.PlaybackSession {
	if c.anim != nil {
		c.anim.ticker.Stop()
		close(c.anim.done)
		c.anim = nil
	}
	c.talking = false
	c.phase = domain.PlaybackIdle
	session := c.session
	c.session = nil
	return session
}

func (c *PlaybackController) current(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == generation
}

// settle returns a failed request to idle unless it was superseded.
func (c *PlaybackController) settle(generation uint64) bool {
	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return false
	}
	c.haltLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	c.events.PlaybackStateChanged(state)
	c.events.LoadingChanged(domain.LoadingSpeech, false)
	return true
}

func (c *PlaybackController) animate(anim *animation) {
	for {
		select {
		case <-anim.done:
			return
		case <-anim.ticker.C:
			c.mu.Lock()
			if c.anim != anim {
				c.mu.Unlock()
				return
			}
			c.talking = !c.talking
			state := c.stateLocked()
			c.mu.Unlock()
			c.events.PlaybackStateChanged(state)
		}
	}
}

func (c *PlaybackController) watch(generation uint64, session ports.PlaybackSession) {
	<-session.Done()

	c.mu.Lock()
	if c.generation != generation || c.session != session {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	c.events.PlaybackStateChanged(state)
}

func (c *PlaybackController) spokenText(text string) string {
	if c.normalizer == nil {
		return text
	}
	if spoken := c.normalizer.Normalize(text); strings.TrimSpace(spoken) != "" {
		return spoken
	}
	return text
}

func stopSession(session ports.PlaybackSession) error {
	if session == nil {
		return nil
	}
	return session.Stop()
}

func errorCodeOr(err error, fallback domain.ErrorCode) domain.ErrorCode {
	if code := domain.ErrorCodeFor(err); code != "" {
		return code
	}
	return fallback
}

var _ ports.Speaker = (*PlaybackController)(nil)

// IsSuperseded reports whether err only means a newer request took over.
func IsSuperseded(err error) bool {
	return errors.Is(err, domain.ErrPlaybackSuperseded)
}
