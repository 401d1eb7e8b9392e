// Package gemini implements the Provider interface using the Generative
// Language API.
//
// It uses generateContent for text and structured output (responseSchema
// constrains the reply to declared fields) and the audio response modality
// for speech synthesis. Audio comes back as base64 raw PCM16 inside an
// inlineData part; the sample rate is carried in the part's MIME type
// (e.g. "audio/L16;codec=pcm;rate=24000").
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/provider"
)

// defaultSampleRate is assumed when the response MIME type carries no rate.
const defaultSampleRate = 24000

// ErrNoAPIKey is returned on the first call when no credential is configured.
// Provider construction never fails on a missing key.
var ErrNoAPIKey = errors.New("gemini: api key not configured (set GEMINI_API_KEY)")

// Provider implements provider.Provider against the Generative Language API.
type Provider struct {
	apiKey      string
	model       string
	speechModel string
	voice       string
	baseURL     string
	client      *http.Client
}

// New creates a new Gemini provider from config.
func New(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		speechModel: cfg.SpeechModel,
		voice:       cfg.Voice,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		client:      &http.Client{},
	}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "gemini" }

// Generate produces a free-text completion.
func (p *Provider) Generate(ctx context.Context, req provider.Request) (string, error) {
	body := generateRequest{
		SystemInstruction: systemInstruction(req.System),
		Contents:          toContents(req.Messages),
	}

	resp, err := p.call(ctx, p.model, body)
	if err != nil {
		return "", err
	}

	text := resp.firstText()
	if text == "" {
		return "", fmt.Errorf("gemini: response contains no text part")
	}
	return text, nil
}

// GenerateStructured produces JSON constrained to the given schema.
func (p *Provider) GenerateStructured(ctx context.Context, req provider.Request, schema *provider.Schema) (json.RawMessage, error) {
	body := generateRequest{
		SystemInstruction: systemInstruction(req.System),
		Contents:          toContents(req.Messages),
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   toAPISchema(schema),
		},
	}

	resp, err := p.call(ctx, p.model, body)
	if err != nil {
		return nil, err
	}

	text := resp.firstText()
	if text == "" {
		return nil, fmt.Errorf("gemini: structured response contains no text part")
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("gemini: structured response is not valid JSON: %.200s", text)
	}
	return json.RawMessage(text), nil
}

// Speak synthesizes the text using the audio response modality.
func (p *Provider) Speak(ctx context.Context, text string) (*provider.Audio, error) {
	body := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: text}},
		}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: p.voice},
				},
			},
		},
	}

	resp, err := p.call(ctx, p.speechModel, body)
	if err != nil {
		return nil, err
	}

	data, mimeType := resp.firstInlineData()
	if data == "" {
		return nil, fmt.Errorf("gemini: response contains no audio payload")
	}

	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("gemini: decoding audio payload: %w", err)
	}

	slog.Debug("speech synthesis complete", "pcm_bytes", len(pcm), "mime_type", mimeType)
	return &provider.Audio{
		PCM:        pcm,
		SampleRate: rateFromMIME(mimeType),
		Channels:   1,
	}, nil
}

// Close is a no-op for the Gemini provider.
func (p *Provider) Close() error { return nil }

// call issues one generateContent request against the given model.
func (p *Provider) call(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("gemini: generateContent failed (status %d): %s", resp.StatusCode, respBody)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini: decoding response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates returned")
	}
	return &out, nil
}

// --- Wire types ---

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *apiSchema    `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// apiSchema mirrors provider.Schema with the API's uppercase type enum.
type apiSchema struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]*apiSchema `json:"properties,omitempty"`
	Items       *apiSchema            `json:"items,omitempty"`
	Required    []string              `json:"required,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

// firstText returns the first non-empty text part of the first candidate.
func (r *generateResponse) firstText() string {
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// firstInlineData returns the first inline data part of the first candidate.
func (r *generateResponse) firstInlineData() (data, mimeType string) {
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData.Data, p.InlineData.MIMEType
		}
	}
	return "", ""
}

// --- Helpers ---

func systemInstruction(text string) *content {
	if text == "" {
		return nil
	}
	return &content{Parts: []part{{Text: text}}}
}

// toContents converts provider messages to API contents.
func toContents(messages []provider.Message) []content {
	out := make([]content, 0, len(messages))
	for _, m := range messages {
		c := content{Role: string(m.Role)}
		for _, pt := range m.Parts {
			if pt.Text != "" {
				c.Parts = append(c.Parts, part{Text: pt.Text})
			}
			if pt.Image != nil {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{
					MIMEType: pt.Image.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(pt.Image.Data),
				}})
			}
		}
		out = append(out, c)
	}
	return out
}

// toAPISchema converts a provider schema to the API's representation.
// The Generative Language API uses an uppercase type enum (OBJECT, STRING, ...).
func toAPISchema(s *provider.Schema) *apiSchema {
	if s == nil {
		return nil
	}
	out := &apiSchema{
		Type:        strings.ToUpper(s.Type),
		Description: s.Description,
		Items:       toAPISchema(s.Items),
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*apiSchema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toAPISchema(v)
		}
	}
	return out
}

// rateFromMIME extracts the sample rate from an audio MIME type such as
// "audio/L16;codec=pcm;rate=24000".
func rateFromMIME(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)
		if val, ok := strings.CutPrefix(param, "rate="); ok {
			if rate, err := strconv.Atoi(val); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return defaultSampleRate
}
