// Package assistant implements the request orchestration around the
// generative-AI provider: it shapes prompts for the tutoring, translation,
// vocabulary, and speech operations, parses structured responses, and owns
// the per-view result state.
package assistant

import (
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/provider"
)

// ChatTurn is one entry in the conversation thread. Turns are immutable
// once created and live only for the session.
type ChatTurn struct {
	ID        string        `json:"id"`
	Role      provider.Role `json:"role"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`

	// Errored marks a model turn that substitutes a fallback message
	// because the provider call failed.
	Errored bool `json:"errored,omitempty"`
}

func newTurn(role provider.Role, text string) ChatTurn {
	return ChatTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// TranslationResult is the parsed outcome of a translation request.
// Translated is always present; the rest is optional guidance.
type TranslationResult struct {
	// Source echoes the input the translation was produced for.
	Source        string `json:"source"`
	Translated    string `json:"translated"`
	Pronunciation string `json:"pronunciation,omitempty"`
	GrammarNotes  string `json:"grammar_notes,omitempty"`
}

// VocabularyItem is one entry of a category lesson batch.
type VocabularyItem struct {
	Word           string `json:"word"`
	Definition     string `json:"definition"`
	Meaning        string `json:"meaning"`
	Example        string `json:"example"`
	ExampleMeaning string `json:"example_meaning"`
}

// DailyWordEntry is the word-of-the-day record, replaced wholesale on
// each refresh.
type DailyWordEntry struct {
	Word           string `json:"word"`
	Meaning        string `json:"meaning"`
	Example        string `json:"example"`
	ExampleMeaning string `json:"example_meaning"`
}
