// Package provider defines the interface to the external generative-AI service.
//
// A provider takes a prompt (text, optionally with an inline image) and
// produces free text, schema-constrained JSON, or synthesized speech. Parley
// ships with two backends: Gemini (Generative Language API, default) and
// OpenAI. Everything "smart" happens behind this interface; the rest of the
// daemon only shapes requests and parses results.
package provider

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks learner input.
	RoleUser Role = "user"

	// RoleModel marks assistant output.
	RoleModel Role = "model"
)

// Image is an inline binary image part (e.g., a captured photo as JPEG).
type Image struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of a message: text, an image, or both.
type Part struct {
	Text  string
	Image *Image
}

// Message is a single conversation entry.
type Message struct {
	Role  Role
	Parts []Part
}

// Request is the provider-agnostic payload for a generation call.
type Request struct {
	// System is the fixed system instruction (tutoring behavior, output policy).
	System string

	// Messages is the ordered conversation, oldest first. For one-shot
	// operations it contains a single user message.
	Messages []Message
}

// Audio is raw synthesized speech: little-endian signed 16-bit PCM, mono.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Provider is the interface every generative-AI backend must implement.
type Provider interface {
	// Name returns the backend identifier (e.g., "gemini", "openai").
	Name() string

	// Generate produces a free-text completion for the request.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStructured produces JSON constrained to the given schema.
	// The returned message is the raw JSON body; callers unmarshal and
	// validate required fields themselves.
	GenerateStructured(ctx context.Context, req Request, schema *Schema) (json.RawMessage, error)

	// Speak synthesizes the text with the backend's fixed voice configuration.
	// The result is always raw PCM16; containers (WAV) are the caller's job.
	Speak(ctx context.Context, text string) (*Audio, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Schema declares the shape of a structured-output response: a restricted
// JSON-schema subset (objects, arrays, strings) that both backends can
// express. Required fields missing from a response are a parse failure for
// the caller, never a default-filled record.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Object builds an object schema with the given properties and required keys.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// Array builds an array schema over the given item schema.
func Array(items *Schema) *Schema {
	return &Schema{Type: "array", Items: items}
}

// String builds a string schema with a description.
func String(desc string) *Schema {
	return &Schema{Type: "string", Description: desc}
}
