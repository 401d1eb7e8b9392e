// Package openai implements the Provider interface using OpenAI's APIs
// through the go-openai SDK.
//
// Structured output uses the json_object response format with the schema
// injected into the system prompt; speech uses the audio/speech endpoint
// with the raw PCM response format (24 kHz, 16-bit LE, mono).
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/provider"
)

// speechSampleRate is fixed by the API for the pcm response format.
const speechSampleRate = 24000

// ErrNoAPIKey is returned on the first call when no credential is configured.
var ErrNoAPIKey = errors.New("openai: api key not configured (set OPENAI_API_KEY)")

// Provider implements provider.Provider on top of the OpenAI API.
type Provider struct {
	apiKey      string
	model       string
	speechModel string
	voice       string
	client      *goopenai.Client
}

// New creates a new OpenAI provider from config.
func New(cfg config.OpenAIConfig) *Provider {
	return &Provider{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		speechModel: cfg.SpeechModel,
		voice:       cfg.Voice,
		client:      goopenai.NewClient(cfg.APIKey),
	}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "openai" }

// Generate produces a free-text completion.
func (p *Provider) Generate(ctx context.Context, req provider.Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrNoAPIKey
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured produces JSON constrained to the given schema.
func (p *Provider) GenerateStructured(ctx context.Context, req provider.Request, schema *provider.Schema) (json.RawMessage, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	// The json_object format guarantees syntactically valid JSON; the field
	// shape is enforced by describing the schema in the system prompt and
	// validated again by the caller.
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("openai: marshalling schema: %w", err)
	}
	augmented := req
	augmented.System = req.System +
		"\n\nRespond with a single JSON object matching exactly this schema (all required fields present, no extra keys, no markdown):\n" +
		string(schemaJSON)

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toMessages(augmented),
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: structured completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}

	content := resp.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("openai: structured response is not valid JSON: %.200s", content)
	}
	return json.RawMessage(content), nil
}

// Speak synthesizes the text via the speech endpoint.
func (p *Provider) Speak(ctx context.Context, text string) (*provider.Audio, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	resp, err := p.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(p.speechModel),
		Input:          text,
		Voice:          goopenai.SpeechVoice(p.voice),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: speech request: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: reading speech response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("openai: response contains no audio payload")
	}

	return &provider.Audio{
		PCM:        pcm,
		SampleRate: speechSampleRate,
		Channels:   1,
	}, nil
}

// Close is a no-op for the OpenAI provider.
func (p *Provider) Close() error { return nil }

// toMessages converts a provider request to SDK chat messages.
func toMessages(req provider.Request) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == provider.RoleModel {
			role = goopenai.ChatMessageRoleAssistant
		}

		if img := firstImage(m.Parts); img != nil {
			parts := make([]goopenai.ChatMessagePart, 0, len(m.Parts))
			for _, pt := range m.Parts {
				if pt.Text != "" {
					parts = append(parts, goopenai.ChatMessagePart{
						Type: goopenai.ChatMessagePartTypeText,
						Text: pt.Text,
					})
				}
				if pt.Image != nil {
					parts = append(parts, goopenai.ChatMessagePart{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL: dataURL(pt.Image),
						},
					})
				}
			}
			out = append(out, goopenai.ChatCompletionMessage{Role: role, MultiContent: parts})
			continue
		}

		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: joinText(m.Parts)})
	}
	return out
}

func firstImage(parts []provider.Part) *provider.Image {
	for _, pt := range parts {
		if pt.Image != nil {
			return pt.Image
		}
	}
	return nil
}

func joinText(parts []provider.Part) string {
	var s string
	for _, pt := range parts {
		s += pt.Text
	}
	return s
}

// dataURL encodes an inline image as a base64 data URL for the vision API.
func dataURL(img *provider.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
