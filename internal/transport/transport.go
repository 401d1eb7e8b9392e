// Package transport defines the contract between the daemon's inbound
// surfaces and the assistant core.
//
// A transport accepts user intents (send message, translate text or image,
// refresh the daily word, pick a lesson category, speak, capture) and hands
// them to the Service; it never reaches into the assistant's internals.
package transport

import (
	"context"

	"github.com/parleyhq/parley/internal/assistant"
	"github.com/parleyhq/parley/internal/audio"
)

// Service is the assistant surface a transport exposes to clients.
type Service interface {
	Converse(ctx context.Context, text string) (assistant.ChatTurn, error)
	Translate(ctx context.Context, text, source string) (assistant.TranslationResult, error)
	TranslateImage(ctx context.Context, imageData []byte, mimeType, source string) (assistant.TranslationResult, error)
	DailyWord(ctx context.Context) assistant.DailyWordEntry
	VocabularyByCategory(ctx context.Context, category string) []assistant.VocabularyItem
	SynthesizeSpeech(ctx context.Context, text string) (audio.Clip, error)

	History() []assistant.ChatTurn
	CurrentTranslation() (assistant.TranslationResult, bool)
	CurrentDailyWord() (assistant.DailyWordEntry, bool)
	CurrentLessons() ([]assistant.VocabularyItem, bool)
	Reset()
}

// Recorder is the scoped capture resource a transport may expose.
type Recorder interface {
	Start() error
	Stop() []float32
	Active() bool
	SampleRate() int
}

// Player emits synthesized clips on the host's output device (kiosk mode).
type Player interface {
	Play(clip audio.Clip)
}

// Transport is the interface every inbound adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting user intents and routes them to the service.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, svc Service) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
