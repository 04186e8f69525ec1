package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	log "log/slog"

	"jarvis/internal/apps"
	"jarvis/internal/assistant"
	"jarvis/internal/audio"
	"jarvis/internal/backend"
	"jarvis/internal/bus"
	"jarvis/internal/config"
	"jarvis/internal/control"
	"jarvis/internal/ipc"
	"jarvis/internal/launch"
	"jarvis/internal/media"
	"jarvis/internal/notify"
	"jarvis/internal/proxy"
	"jarvis/internal/speech"
	"jarvis/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	log.Info("Booting up", "provider", cfg.Provider, "wake", cfg.WakeWord)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewClient(cfg.Proxy, proxy.DefaultTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	registry := apps.Default()

	model, err := backend.New(ctx, backend.Options{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
		Apps:       registry,
		Persona:    backend.Persona{UserName: cfg.UserName},
	})
	if err != nil {
		log.Error("Failed to create backend", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded backend")

	rec := audio.NewRecorder(audio.DefaultRecorderConfig())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	whisper, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	lang, _, _ := strings.Cut(cfg.Language, "-")
	sttOpts := stt.Options{
		Language:      lang,
		InitialPrompt: cfg.WakeWord + ".",
	}
	recognizer := speech.NewWhisperRecognizer(rec, whisper, sttOpts)

	player := audio.NewPlayer(0)

	voice := speech.DefaultVoicePreference
	voice.Lang = lang
	espeak := speech.EspeakOptions{
		Binary: cfg.Espeak,
		Voice:  voice,
		Pitch:  0.9,
		Rate:   1.1,
		Player: player,
	}
	if cfg.Duck {
		espeak.Ducker = audio.NewDucker(audio.DuckerOptions{
			SelfNames: []string{"jarvis", os.Args[0]},
			Floor:     5,
		})
	}

	devices := media.NewManager(media.Devices{
		Camera:  cfg.Camera,
		Display: cfg.Display,
		Width:   cfg.FrameWidth,
		Height:  cfg.FrameHeight,
	})
	defer devices.Close()

	deps := assistant.Deps{
		Backend:     model,
		Media:       devices,
		Recognizer:  recognizer,
		Synthesizer: speech.NewEspeak(espeak),
		Opener:      launch.NewBrowser(),
	}
	if cfg.Chime != "" {
		deps.Chime = notify.NewChime(cfg.Chime, player)
	}

	m := assistant.New(deps, assistant.Options{
		WakeWord:      cfg.WakeWord,
		ListenTimeout: cfg.ListenTimeout,
		UserName:      cfg.UserName,
	})
	defer m.Close()

	ctl := control.New(control.Options{
		Assistant:  m,
		Screen:     devices,
		Apps:       registry,
		STT:        whisper,
		STTOptions: sttOpts,
	})

	if cfg.BusURL != "" {
		hub := bus.New(bus.Options{
			URL:     cfg.BusURL,
			Shard:   cfg.Shard,
			Handler: ctl.HandleBus,
		})
		m.Subscribe(func(ev assistant.Event) { hub.Publish(toBusEvent(ev)) })
		go hub.Run(ctx)

		log.Debug("Connecting to hub", "url", cfg.BusURL, "session", hub.Session())
	}

	srv, err := ipc.Listen(cfg.Socket, ctl.Handle)
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Socket, "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	// A failed start leaves the machine in ERROR with a banner; the control
	// surface stays up so the user can see it.
	if err := m.Start(ctx); err != nil {
		log.Error("Assistant started degraded", "state", m.State(), "err", err)
	} else {
		log.Info("Boot up - successful")
	}

	if err := srv.Serve(ctx); err != nil {
		log.Error("Control server stopped", "err", err)
	}

	log.Info("Shutting down")
}

func toBusEvent(ev assistant.Event) bus.Event {
	out := bus.Event{State: ev.State.String()}

	switch ev.Kind {
	case assistant.EventStateChanged:
		out.Kind = bus.EventState
	case assistant.EventMessageAppended:
		out.Kind = bus.EventMessage
		msg := ev.Message
		out.Message = &msg
	case assistant.EventErrorChanged:
		out.Kind = bus.EventError
		out.Error = ev.Error
	}

	return out
}
