package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"upitquest/internal/audio"
	"upitquest/internal/config"
	"upitquest/internal/domain"
	"upitquest/internal/gateway"
	"upitquest/internal/ports"
	"upitquest/internal/preferences"
	"upitquest/internal/providers/deepgram"
	"upitquest/internal/proxy"
	"upitquest/internal/questions"
	"upitquest/internal/speechtext"
	"upitquest/internal/usecase"
)

var logger = otelslog.NewLogger("upitquest/internal/bootstrap")

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Tutor       *usecase.Tutor
	Playback    *usecase.PlaybackController
	Recorder    *usecase.Recorder
	Preferences *preferences.Store
	Questions   *questions.Bank
	Proxy       *proxy.Server
	GatewayURL  string
}

// Build wires all backend dependencies for the current runtime. Unless a
// gateway URL is configured, the proxy is started on a loopback listener and
// the gateway targets it.
func Build(eventSink ports.EventSink) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	prefs, err := preferences.Open(cfg.Preferences.Path)
	if err != nil {
		return nil, err
	}

	normalizer, err := speechtext.NewNormalizer(cfg.Speech.RulesPath, cfg.Speech.IterationLimit)
	if err != nil {
		return nil, err
	}

	bank, err := questions.BuiltIn()
	if err != nil {
		return nil, err
	}

	services := &Services{
		Config:      cfg,
		Preferences: prefs,
		Questions:   bank,
		Proxy:       BuildProxy(cfg),
		GatewayURL:  cfg.Gateway.BaseURL,
	}

	if services.GatewayURL == "" {
		listener, err := net.Listen("tcp", cfg.Proxy.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen for proxy on %s: %w", cfg.Proxy.Addr, err)
		}
		services.GatewayURL = "http://" + listener.Addr().String()
		go func() {
			if err := services.Proxy.Serve(listener); err != nil {
				logger.Error("proxy stopped", "error", err)
			}
		}()
	}

	client := gateway.NewClient(gateway.Config{
		BaseURL: services.GatewayURL,
		Timeout: cfg.Gateway.Timeout,
	})

	services.Playback = usecase.NewPlaybackController(
		client,
		audio.NewFFPlayPlayer(cfg.Playback.PlayerCommand),
		normalizer,
		prefs,
		eventSink,
		usecase.PlaybackConfig{
			Volume:       cfg.Playback.Volume,
			TalkInterval: cfg.Playback.TalkInterval,
		},
	)
	services.Tutor = usecase.NewTutor(client, prefs, services.Playback, bank, eventSink)
	services.Recorder = usecase.NewRecorder(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		services.Tutor,
		eventSink,
		usecase.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Audio.ChunkSize,
		},
	)

	logger.Info("services ready", "gateway", services.GatewayURL, "stt_provider", cfg.Proxy.STTProvider)
	return services, nil
}

// BuildProxy assembles the proxy server and its provider backend.
func BuildProxy(cfg config.Config) *proxy.Server {
	var transcriber proxy.FileTranscriber
	if cfg.Proxy.STTProvider == config.STTProviderDeepgram {
		transcriber = deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		})
	}

	backend := proxy.NewOpenAIBackend(proxy.OpenAIConfig{
		BaseURL:   cfg.OpenAI.APIBaseURL,
		ChatModel: cfg.OpenAI.ChatModel,
		TTSModel:  cfg.OpenAI.TTSModel,
		TTSVoice:  cfg.OpenAI.TTSVoice,
		STTModel:  cfg.OpenAI.STTModel,
	}, transcriber)

	return proxy.New(proxy.Config{SystemPrompt: cfg.Proxy.SystemPrompt}, backend)
}

// Close stops playback, discards any capture and shuts the proxy down.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Playback != nil {
		if err := s.Playback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Recorder != nil {
		if err := s.Recorder.Abort(); err != nil && !errors.Is(err, domain.ErrNoActiveRecording) {
			errs = append(errs, err)
		}
	}
	if s.Proxy != nil {
		if err := s.Proxy.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
