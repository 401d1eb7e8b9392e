// Parley is a companion daemon for a mobile language-learning assistant:
// it orchestrates chat tutoring, translation, vocabulary lessons, and
// speech synthesis against a generative-AI provider, and exposes them over
// an HTTP API.
//
// Usage:
//
//	parley [flags]
//	parley --config /path/to/parley.yaml
//	parley --say "buenos días"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/parleyhq/parley/internal/assistant"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/capture"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/health"
	"github.com/parleyhq/parley/internal/provider"
	geminiprovider "github.com/parleyhq/parley/internal/provider/gemini"
	openaiprovider "github.com/parleyhq/parley/internal/provider/openai"
	"github.com/parleyhq/parley/internal/transport"
	httptransport "github.com/parleyhq/parley/internal/transport/http"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/parley.yaml)")
	sayText := flag.String("say", "", "synthesize the text, play it on the local output device, and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parley %s\n", version)
		os.Exit(0)
	}

	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("parley starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the provider backend. A missing API key is not fatal here:
	// it surfaces as a service error on the first call.
	var prov provider.Provider
	switch cfg.Provider.Backend {
	case "gemini":
		prov = geminiprovider.New(cfg.Provider.Gemini)
		slog.Info("using Gemini provider",
			"model", cfg.Provider.Gemini.Model,
			"speech_model", cfg.Provider.Gemini.SpeechModel)
	case "openai":
		prov = openaiprovider.New(cfg.Provider.OpenAI)
		slog.Info("using OpenAI provider",
			"model", cfg.Provider.OpenAI.Model,
			"speech_model", cfg.Provider.OpenAI.SpeechModel)
	default:
		slog.Error("unknown provider backend", "backend", cfg.Provider.Backend)
		os.Exit(1)
	}
	defer prov.Close()

	tutor := assistant.New(prov, cfg.Languages.Native, cfg.Languages.Target)

	// One-shot mode: synthesize, play locally, exit.
	if *sayText != "" {
		if err := sayOnce(ctx, tutor, *sayText); err != nil {
			slog.Error("say failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Local audio devices are optional: a headless host still serves the API.
	var player transport.Player
	if cfg.Speech.LocalPlayback {
		p, err := audio.NewPlayer(nil)
		if err != nil {
			slog.Warn("local playback unavailable", "error", err)
		} else {
			defer p.Close()
			player = p
		}
	}

	var recorder transport.Recorder
	rec, err := capture.NewRecorder(cfg.Capture.SampleRate, cfg.Capture.MaxSeconds)
	if err != nil {
		slog.Warn("voice-note capture unavailable", "error", err)
	} else {
		defer rec.Close()
		recorder = rec
	}

	transports := []transport.Transport{
		httptransport.New(cfg.HTTP.Port, recorder, player),
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, prov.Name())
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, tutor); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("parley ready",
		"languages", cfg.Languages.Native+"/"+cfg.Languages.Target,
		"http_port", cfg.HTTP.Port,
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("parley stopped")
}

// sayOnce synthesizes the text and plays it on the default output device,
// blocking until playback has drained.
func sayOnce(ctx context.Context, tutor *assistant.Assistant, text string) error {
	clip, err := tutor.SynthesizeSpeech(ctx, text)
	if err != nil {
		return err
	}

	player, err := audio.NewPlayer(nil)
	if err != nil {
		return err
	}
	player.Play(clip)
	return player.Close()
}
