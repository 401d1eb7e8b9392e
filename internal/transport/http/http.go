// Package http implements the HTTP API transport for parley.
//
// This is the surface the mobile client talks to: chat, translation,
// vocabulary lessons, speech synthesis, and voice-note capture. Handlers
// are deliberately thin — every decision about failure visibility lives in
// the assistant, and a slow provider call blocks only its own request.
package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/parleyhq/parley/internal/assistant"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/capture"
	"github.com/parleyhq/parley/internal/transport"
)

// maxImageBytes caps an uploaded photo.
const maxImageBytes = 10 << 20

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port     int
	recorder transport.Recorder // nil if capture is unavailable
	player   transport.Player   // nil unless local playback is enabled
	server   *http.Server
}

// New creates a new HTTP transport on the given port. recorder and player
// are optional.
func New(port int, recorder transport.Recorder, player transport.Player) *Transport {
	return &Transport{port: port, recorder: recorder, player: player}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the service.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Routes(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Routes builds the API mux for the given service.
func (t *Transport) Routes(svc transport.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		t.handleChat(w, r, svc)
	})
	mux.HandleFunc("GET /api/chat", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.History())
	})
	mux.HandleFunc("POST /api/translate", func(w http.ResponseWriter, r *http.Request) {
		t.handleTranslate(w, r, svc)
	})
	mux.HandleFunc("GET /api/translate", func(w http.ResponseWriter, r *http.Request) {
		result, ok := svc.CurrentTranslation()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
	mux.HandleFunc("POST /api/translate/image", func(w http.ResponseWriter, r *http.Request) {
		t.handleTranslateImage(w, r, svc)
	})
	mux.HandleFunc("GET /api/word", func(w http.ResponseWriter, r *http.Request) {
		entry, ok := svc.CurrentDailyWord()
		if !ok {
			entry = svc.DailyWord(r.Context())
		}
		writeJSON(w, http.StatusOK, entry)
	})
	mux.HandleFunc("POST /api/word/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.DailyWord(r.Context()))
	})
	mux.HandleFunc("GET /api/lessons/{category}", func(w http.ResponseWriter, r *http.Request) {
		items := svc.VocabularyByCategory(r.Context(), r.PathValue("category"))
		if items == nil {
			items = []assistant.VocabularyItem{}
		}
		writeJSON(w, http.StatusOK, items)
	})
	mux.HandleFunc("POST /api/speak", func(w http.ResponseWriter, r *http.Request) {
		t.handleSpeak(w, r, svc)
	})
	mux.HandleFunc("POST /api/capture/start", t.handleCaptureStart)
	mux.HandleFunc("POST /api/capture/stop", t.handleCaptureStop)
	mux.HandleFunc("POST /api/session/reset", func(w http.ResponseWriter, r *http.Request) {
		svc.Reset()
		w.WriteHeader(http.StatusNoContent)
	})

	// Swagger UI — serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// handleChat processes a POST /api/chat request.
//
// @Summary     Send a chat message to the tutor
// @Description Appends the message to the conversation and returns the tutor's reply turn.
// @Description A failed provider call still returns 200: the reply turn carries a fallback
// @Description text and the errored flag, so the client renders an inline bubble.
// @Tags        chat
// @Accept      json
// @Produce     json
// @Param       request  body      chatRequest  true  "Chat message"
// @Success     200  {object}  assistant.ChatTurn
// @Failure     400  {string}  string  "Empty or invalid message"
// @Router      /api/chat [post]
func (t *Transport) handleChat(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	turn, err := svc.Converse(r.Context(), req.Text)
	if errors.Is(err, assistant.ErrEmptyInput) {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	if err != nil {
		// Fail loud, degrade inline: the turn is the fallback bubble.
		slog.Warn("chat degraded to fallback turn", "error", err)
	}
	writeJSON(w, http.StatusOK, turn)
}

// handleTranslate processes a POST /api/translate request.
//
// @Summary     Translate text
// @Description Translates between the configured language pair; source names the input language.
// @Tags        translate
// @Accept      json
// @Produce     json
// @Param       request  body      translateRequest  true  "Text and source language"
// @Success     200  {object}  assistant.TranslationResult
// @Failure     400  {string}  string  "Unknown source language or invalid body"
// @Failure     502  {string}  string  "Provider call failed or response missed required fields"
// @Router      /api/translate [post]
func (t *Transport) handleTranslate(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := svc.Translate(r.Context(), req.Text, req.Source)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTranslateImage processes a POST /api/translate/image request.
//
// @Summary     Translate a photographed text
// @Description Accepts a multipart upload (fields "image", "source") or a JSON body with
// @Description base64 image data, and returns the same result shape as /api/translate.
// @Tags        translate
// @Accept      json
// @Accept      multipart/form-data
// @Produce     json
// @Success     200  {object}  assistant.TranslationResult
// @Failure     400  {string}  string  "Missing image or unknown source language"
// @Failure     502  {string}  string  "Provider call failed or response missed required fields"
// @Router      /api/translate/image [post]
func (t *Transport) handleTranslateImage(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var (
		data     []byte
		mimeType string
		source   string
	)

	if r.Header.Get("Content-Type") == "application/json" {
		var req imageTranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			http.Error(w, "invalid base64 image: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, mimeType, source = decoded, req.MIMEType, req.Source
	} else {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "missing image file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err = io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			http.Error(w, "reading image: "+err.Error(), http.StatusBadRequest)
			return
		}
		mimeType = header.Header.Get("Content-Type")
		source = r.FormValue("source")
	}

	if len(data) == 0 {
		http.Error(w, "empty image payload", http.StatusBadRequest)
		return
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	result, err := svc.TranslateImage(r.Context(), data, mimeType, source)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSpeak processes a POST /api/speak request.
//
// @Summary     Synthesize speech for a text
// @Description Returns the synthesized speech as a WAV file. With local playback enabled
// @Description the clip is additionally emitted on the host's output device.
// @Tags        speech
// @Accept      json
// @Produce     audio/wav
// @Param       request  body      speakRequest  true  "Text to speak"
// @Success     200  {file}    file  "WAV audio"
// @Failure     400  {string}  string  "Empty text"
// @Failure     502  {string}  string  "Provider returned no audio payload"
// @Router      /api/speak [post]
func (t *Transport) handleSpeak(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	clip, err := svc.SynthesizeSpeech(r.Context(), req.Text)
	if errors.Is(err, assistant.ErrEmptyInput) {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if t.player != nil {
		t.player.Play(clip)
	}

	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(audio.WAV(clip))
}

// handleCaptureStart processes a POST /api/capture/start request.
//
// @Summary     Start a voice-note capture
// @Tags        capture
// @Success     204  "Capture started (or already running)"
// @Failure     503  {string}  string  "Input device unavailable"
// @Router      /api/capture/start [post]
func (t *Transport) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if t.recorder == nil {
		http.Error(w, "capture not available", http.StatusServiceUnavailable)
		return
	}
	if err := t.recorder.Start(); err != nil {
		var capErr *capture.CaptureError
		if errors.As(err, &capErr) {
			http.Error(w, capErr.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCaptureStop processes a POST /api/capture/stop request.
//
// @Summary     Stop the capture and return the recording
// @Description Stopping an inactive capture is a harmless no-op (204).
// @Tags        capture
// @Produce     audio/wav
// @Success     200  {file}  file  "WAV recording"
// @Success     204  "No active capture"
// @Router      /api/capture/stop [post]
func (t *Transport) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if t.recorder == nil {
		http.Error(w, "capture not available", http.StatusServiceUnavailable)
		return
	}
	samples := t.recorder.Stop()
	if len(samples) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	clip := audio.FromFloat32(samples, t.recorder.SampleRate())
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(audio.WAV(clip))
}

// Close gracefully shuts down the HTTP server and releases any active
// capture stream.
func (t *Transport) Close() error {
	if t.recorder != nil {
		t.recorder.Stop()
	}
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// --- Request bodies and helpers ---

type chatRequest struct {
	Text string `json:"text"`
}

type translateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type imageTranslateRequest struct {
	Image    string `json:"image"` // base64
	MIMEType string `json:"mime_type"`
	Source   string `json:"source"`
}

type speakRequest struct {
	Text string `json:"text"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps assistant errors to HTTP statuses: bad input is
// the caller's fault, everything else is the upstream provider's.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrUnknownLanguage), errors.Is(err, assistant.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("provider call failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
