package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/view"
)

// lessonBatchSize is the fixed number of items requested per category.
const lessonBatchSize = 5

// conversationFallback is appended as an errored model turn when the
// provider call fails. Chat failures degrade to an inline message in the
// thread, never a crash.
const conversationFallback = "Sorry, I couldn't reach your tutor just now. Please try again in a moment."

// fallbackDailyWord is returned whenever the word-of-the-day request fails
// in any way. The feature is decorative, so it never fails visibly.
var fallbackDailyWord = DailyWordEntry{
	Word:           "Welcome",
	Meaning:        "Bienvenido",
	Example:        "Welcome to today's lesson!",
	ExampleMeaning: "¡Bienvenido a la lección de hoy!",
}

// Assistant orchestrates provider calls for the chat, translation, and
// lesson views and applies results to the per-view state slices.
type Assistant struct {
	provider provider.Provider
	native   string // learner's own language (ISO-639-1)
	target   string // language being learned

	session     *Session
	translation view.Slice[TranslationResult]
	daily       view.Slice[DailyWordEntry]
	lessons     view.Slice[[]VocabularyItem]
}

// New creates an assistant tutoring between the given language pair.
func New(p provider.Provider, native, target string) *Assistant {
	return &Assistant{
		provider: p,
		native:   native,
		target:   target,
		session:  NewSession(),
	}
}

// Converse appends the learner's message to the thread, sends the full
// history with the tutoring instruction, and appends the model's reply.
//
// Empty or whitespace-only text is a no-op: no provider call is issued and
// ErrEmptyInput is returned. On a provider failure the returned turn
// carries a fixed fallback text with the error flag set, and the
// ServiceError is returned alongside it — the thread stays usable.
func (a *Assistant) Converse(ctx context.Context, text string) (ChatTurn, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ChatTurn{}, ErrEmptyInput
	}

	userTurn := newTurn(provider.RoleUser, trimmed)
	a.session.Append(userTurn)

	req := provider.Request{
		System:   a.tutorInstruction(),
		Messages: historyMessages(a.session.History()),
	}

	start := time.Now()
	reply, err := a.provider.Generate(ctx, req)
	if err != nil {
		turn := newTurn(provider.RoleModel, conversationFallback)
		turn.Errored = true
		a.session.Append(turn)
		slog.Error("converse failed", "error", err, "duration", time.Since(start))
		return turn, serviceErr("converse", err)
	}

	turn := newTurn(provider.RoleModel, reply)
	a.session.Append(turn)
	slog.Debug("converse complete", "turns", a.session.Len(), "duration", time.Since(start))
	return turn, nil
}

// Translate translates text from the given source language to the other
// half of the configured pair. A response missing the required field is a
// ServiceError, never a default-filled result; on failure the translation
// panel keeps its previous content.
func (a *Assistant) Translate(ctx context.Context, text, source string) (TranslationResult, error) {
	dest, err := a.counterpart(source)
	if err != nil {
		return TranslationResult{}, err
	}

	req := provider.Request{
		System: a.translatorInstruction(source, dest),
		Messages: []provider.Message{{
			Role:  provider.RoleUser,
			Parts: []provider.Part{{Text: text}},
		}},
	}

	return a.runTranslation(ctx, "translate", text, req)
}

// TranslateImage is Translate over an image payload (e.g., a captured
// photo as JPEG) paired with a language hint. Same output contract.
func (a *Assistant) TranslateImage(ctx context.Context, imageData []byte, mimeType, source string) (TranslationResult, error) {
	dest, err := a.counterpart(source)
	if err != nil {
		return TranslationResult{}, err
	}

	req := provider.Request{
		System: a.translatorInstruction(source, dest),
		Messages: []provider.Message{{
			Role: provider.RoleUser,
			Parts: []provider.Part{
				{Text: fmt.Sprintf("Translate all %s text visible in this image.", languageName(source))},
				{Image: &provider.Image{MIMEType: mimeType, Data: imageData}},
			},
		}},
	}

	return a.runTranslation(ctx, "translate-image", "(image)", req)
}

// runTranslation issues a structured translation request and applies the
// parsed result to the panel slice unless a newer request superseded it.
func (a *Assistant) runTranslation(ctx context.Context, op, source string, req provider.Request) (TranslationResult, error) {
	schema := provider.Object(map[string]*provider.Schema{
		"translated":    provider.String("the translation of the input"),
		"pronunciation": provider.String("pronunciation guidance for the translation, if helpful"),
		"grammarNotes":  provider.String("a short grammar note about the translation, if helpful"),
	}, "translated")

	ticket := a.translation.Begin()

	raw, err := a.provider.GenerateStructured(ctx, req, schema)
	if err != nil {
		return TranslationResult{}, serviceErr(op, err)
	}

	var parsed struct {
		Translated    *string `json:"translated"`
		Pronunciation string  `json:"pronunciation"`
		GrammarNotes  string  `json:"grammarNotes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TranslationResult{}, serviceErr(op, fmt.Errorf("unmarshalling response: %w", err))
	}
	if parsed.Translated == nil || strings.TrimSpace(*parsed.Translated) == "" {
		return TranslationResult{}, serviceErr(op, fmt.Errorf("response is missing required field %q", "translated"))
	}

	result := TranslationResult{
		Source:        source,
		Translated:    *parsed.Translated,
		Pronunciation: parsed.Pronunciation,
		GrammarNotes:  parsed.GrammarNotes,
	}

	if !a.translation.Apply(ticket, result) {
		slog.Debug("translation superseded, result discarded", "op", op)
	}
	return result, nil
}

// DailyWord fetches the word of the day. It never fails visibly: any
// failure (transport, parse, empty body) yields the fixed fallback entry.
func (a *Assistant) DailyWord(ctx context.Context) DailyWordEntry {
	ticket := a.daily.Begin()

	schema := provider.Object(map[string]*provider.Schema{
		"word":           provider.String("one useful word or short phrase in the target language"),
		"meaning":        provider.String("its meaning in the learner's language"),
		"example":        provider.String("a short example sentence using the word"),
		"exampleMeaning": provider.String("the example sentence in the learner's language"),
	}, "word", "meaning", "example", "exampleMeaning")

	req := provider.Request{
		System: a.lessonInstruction(),
		Messages: []provider.Message{{
			Role: provider.RoleUser,
			Parts: []provider.Part{{Text: fmt.Sprintf(
				"Give me one useful everyday %s word for today, different from the most common textbook picks.",
				languageName(a.target))}},
		}},
	}

	raw, err := a.provider.GenerateStructured(ctx, req, schema)
	if err != nil {
		slog.Warn("daily word failed, using fallback", "error", err)
		a.daily.Apply(ticket, fallbackDailyWord)
		return fallbackDailyWord
	}

	var parsed dailyWordJSON
	if err := parseRequired(raw, &parsed, []string{"word", "meaning", "example", "exampleMeaning"}); err != nil {
		slog.Warn("daily word unparsable, using fallback", "error", err)
		a.daily.Apply(ticket, fallbackDailyWord)
		return fallbackDailyWord
	}

	entry := DailyWordEntry(parsed)
	a.daily.Apply(ticket, entry)
	return entry
}

// VocabularyByCategory fetches a fixed-size lesson batch for the category.
// Failures are invisible: the caller gets an empty slice, never an error.
// On success the batch is returned exactly as parsed, without truncation
// or padding.
func (a *Assistant) VocabularyByCategory(ctx context.Context, category string) []VocabularyItem {
	ticket := a.lessons.Begin()

	item := provider.Object(map[string]*provider.Schema{
		"word":           provider.String("the word or phrase in the target language"),
		"definition":     provider.String("a simple definition in the target language"),
		"meaning":        provider.String("the meaning in the learner's language"),
		"example":        provider.String("an example sentence in the target language"),
		"exampleMeaning": provider.String("the example sentence in the learner's language"),
	}, "word", "definition", "meaning", "example", "exampleMeaning")
	schema := provider.Object(map[string]*provider.Schema{
		"items": provider.Array(item),
	}, "items")

	req := provider.Request{
		System: a.lessonInstruction(),
		Messages: []provider.Message{{
			Role: provider.RoleUser,
			Parts: []provider.Part{{Text: fmt.Sprintf(
				"Give me %d %s vocabulary items for the category %q.",
				lessonBatchSize, languageName(a.target), category)}},
		}},
	}

	raw, err := a.provider.GenerateStructured(ctx, req, schema)
	if err != nil {
		slog.Warn("vocabulary lookup failed", "category", category, "error", err)
		return nil
	}

	var parsed struct {
		Items []vocabularyItemJSON `json:"items"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("vocabulary response unparsable", "category", category, "error", err)
		return nil
	}

	items := make([]VocabularyItem, len(parsed.Items))
	for i, it := range parsed.Items {
		items[i] = VocabularyItem(it)
	}
	a.lessons.Apply(ticket, items)
	return items
}

// SynthesizeSpeech asks the provider for audio-modality output and decodes
// the raw PCM16 payload into a playable clip. A response without an audio
// payload, or with a truncated (odd-length) byte stream, is a ServiceError.
func (a *Assistant) SynthesizeSpeech(ctx context.Context, text string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, ErrEmptyInput
	}

	res, err := a.provider.Speak(ctx, text)
	if err != nil {
		return audio.Clip{}, serviceErr("synthesize", err)
	}
	if len(res.PCM) == 0 {
		return audio.Clip{}, serviceErr("synthesize", fmt.Errorf("response contains no audio payload"))
	}

	clip, err := audio.Decode(res.PCM, res.SampleRate)
	if err != nil {
		return audio.Clip{}, serviceErr("synthesize", err)
	}
	return clip, nil
}

// --- View accessors ---

// History returns the conversation thread.
func (a *Assistant) History() []ChatTurn { return a.session.History() }

// CurrentTranslation returns the translation panel state.
func (a *Assistant) CurrentTranslation() (TranslationResult, bool) { return a.translation.Get() }

// CurrentDailyWord returns the last applied word of the day.
func (a *Assistant) CurrentDailyWord() (DailyWordEntry, bool) { return a.daily.Get() }

// CurrentLessons returns the lesson browser state.
func (a *Assistant) CurrentLessons() ([]VocabularyItem, bool) { return a.lessons.Get() }

// Reset discards the conversation and clears every view slice. In-flight
// requests begun before the reset can no longer repopulate the views.
func (a *Assistant) Reset() {
	a.session.Reset()
	a.translation.Reset()
	a.daily.Reset()
	a.lessons.Reset()
}

// --- Prompts ---

func (a *Assistant) tutorInstruction() string {
	native, target := languageName(a.native), languageName(a.target)
	return fmt.Sprintf(`You are a friendly %[2]s tutor for a %[1]s speaker.
Reply in simple %[2]s the learner can follow. When the learner makes a mistake,
correct it gently and add a one-sentence explanation in %[1]s. Keep answers
short and conversational; this is a chat, not a lecture.`, native, target)
}

func (a *Assistant) translatorInstruction(source, dest string) string {
	return fmt.Sprintf(`You are a precise translator from %s to %s for a language
learner. Translate faithfully, prefer natural phrasing over word-for-word
renderings, and when useful include pronunciation guidance and a short
grammar note.`, languageName(source), languageName(dest))
}

func (a *Assistant) lessonInstruction() string {
	return fmt.Sprintf(`You are building vocabulary lessons in %s for a %s speaker.
Choose words a learner actually meets in everyday life, with natural example
sentences.`, languageName(a.target), languageName(a.native))
}

// counterpart validates the source language and returns the other half of
// the configured pair.
func (a *Assistant) counterpart(source string) (string, error) {
	switch source {
	case a.native:
		return a.target, nil
	case a.target:
		return a.native, nil
	default:
		return "", fmt.Errorf("%w: %q (pair is %s/%s)", ErrUnknownLanguage, source, a.native, a.target)
	}
}

// --- Helpers ---

// vocabularyItemJSON mirrors VocabularyItem with the schema's field names.
type vocabularyItemJSON struct {
	Word           string `json:"word"`
	Definition     string `json:"definition"`
	Meaning        string `json:"meaning"`
	Example        string `json:"example"`
	ExampleMeaning string `json:"exampleMeaning"`
}

// dailyWordJSON mirrors DailyWordEntry with the schema's field names.
type dailyWordJSON struct {
	Word           string `json:"word"`
	Meaning        string `json:"meaning"`
	Example        string `json:"example"`
	ExampleMeaning string `json:"exampleMeaning"`
}

// parseRequired unmarshals raw into dst and verifies every required key is
// present and non-empty in the JSON body.
func parseRequired(raw json.RawMessage, dst any, required []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("unmarshalling response: %w", err)
	}
	for _, key := range required {
		val, ok := fields[key]
		if !ok {
			return fmt.Errorf("response is missing required field %q", key)
		}
		var s string
		if err := json.Unmarshal(val, &s); err != nil || strings.TrimSpace(s) == "" {
			return fmt.Errorf("response field %q is empty", key)
		}
	}
	return json.Unmarshal(raw, dst)
}

// historyMessages converts the thread to provider messages, skipping
// errored fallback turns so a failed exchange doesn't pollute the context.
func historyMessages(turns []ChatTurn) []provider.Message {
	out := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		if t.Errored {
			continue
		}
		out = append(out, provider.Message{
			Role:  t.Role,
			Parts: []provider.Part{{Text: t.Text}},
		})
	}
	return out
}

// languageName maps ISO-639-1 codes to English names for prompt text.
func languageName(code string) string {
	known := map[string]string{
		"en": "English",
		"fr": "French",
		"es": "Spanish",
		"de": "German",
		"it": "Italian",
		"pt": "Portuguese",
		"nl": "Dutch",
		"pl": "Polish",
		"ru": "Russian",
		"ja": "Japanese",
		"ko": "Korean",
		"zh": "Chinese",
		"ar": "Arabic",
		"hi": "Hindi",
		"tr": "Turkish",
		"km": "Khmer",
		"vi": "Vietnamese",
		"th": "Thai",
	}
	if name, ok := known[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
