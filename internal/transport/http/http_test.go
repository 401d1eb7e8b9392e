package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/assistant"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/capture"
)

// fakeService implements transport.Service with injectable behavior.
type fakeService struct {
	converseFn   func(ctx context.Context, text string) (assistant.ChatTurn, error)
	translateFn  func(ctx context.Context, text, source string) (assistant.TranslationResult, error)
	imageFn      func(ctx context.Context, data []byte, mimeType, source string) (assistant.TranslationResult, error)
	dailyFn      func(ctx context.Context) assistant.DailyWordEntry
	vocabularyFn func(ctx context.Context, category string) []assistant.VocabularyItem
	speechFn     func(ctx context.Context, text string) (audio.Clip, error)

	history     []assistant.ChatTurn
	translation *assistant.TranslationResult
	daily       *assistant.DailyWordEntry
	lessons     []assistant.VocabularyItem
	resets      int
}

func (f *fakeService) Converse(ctx context.Context, text string) (assistant.ChatTurn, error) {
	return f.converseFn(ctx, text)
}

func (f *fakeService) Translate(ctx context.Context, text, source string) (assistant.TranslationResult, error) {
	return f.translateFn(ctx, text, source)
}

func (f *fakeService) TranslateImage(ctx context.Context, data []byte, mimeType, source string) (assistant.TranslationResult, error) {
	return f.imageFn(ctx, data, mimeType, source)
}

func (f *fakeService) DailyWord(ctx context.Context) assistant.DailyWordEntry {
	return f.dailyFn(ctx)
}

func (f *fakeService) VocabularyByCategory(ctx context.Context, category string) []assistant.VocabularyItem {
	return f.vocabularyFn(ctx, category)
}

func (f *fakeService) SynthesizeSpeech(ctx context.Context, text string) (audio.Clip, error) {
	return f.speechFn(ctx, text)
}

func (f *fakeService) History() []assistant.ChatTurn { return f.history }

func (f *fakeService) CurrentTranslation() (assistant.TranslationResult, bool) {
	if f.translation == nil {
		return assistant.TranslationResult{}, false
	}
	return *f.translation, true
}

func (f *fakeService) CurrentDailyWord() (assistant.DailyWordEntry, bool) {
	if f.daily == nil {
		return assistant.DailyWordEntry{}, false
	}
	return *f.daily, true
}

func (f *fakeService) CurrentLessons() ([]assistant.VocabularyItem, bool) {
	if f.lessons == nil {
		return nil, false
	}
	return f.lessons, true
}

func (f *fakeService) Reset() { f.resets++ }

// fakeRecorder implements transport.Recorder.
type fakeRecorder struct {
	startErr error
	samples  []float32
	active   bool
}

func (f *fakeRecorder) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeRecorder) Stop() []float32 {
	f.active = false
	return f.samples
}

func (f *fakeRecorder) Active() bool    { return f.active }
func (f *fakeRecorder) SampleRate() int { return 16000 }

func serve(t *Transport, svc *fakeService, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	t.Routes(svc).ServeHTTP(rec, req)
	return rec
}

func TestChat_Post(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		converseFn: func(_ context.Context, text string) (assistant.ChatTurn, error) {
			assert.Equal(t, "hola", text)
			return assistant.ChatTurn{ID: "t1", Role: "model", Text: "¡Hola!"}, nil
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/chat", []byte(`{"text":"hola"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var turn assistant.ChatTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "¡Hola!", turn.Text)
	assert.False(t, turn.Errored)
}

func TestChat_EmptyMessage(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		converseFn: func(context.Context, string) (assistant.ChatTurn, error) {
			return assistant.ChatTurn{}, assistant.ErrEmptyInput
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/chat", []byte(`{"text":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_ProviderFailureStillReturnsTurn(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		converseFn: func(context.Context, string) (assistant.ChatTurn, error) {
			turn := assistant.ChatTurn{ID: "t2", Role: "model", Text: "Sorry...", Errored: true}
			return turn, &assistant.ServiceError{Op: "converse", Err: errors.New("boom")}
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/chat", []byte(`{"text":"hola"}`))

	// The client renders the fallback bubble, so this is still a 200.
	require.Equal(t, http.StatusOK, rec.Code)
	var turn assistant.ChatTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.True(t, turn.Errored)
}

func TestChat_GetHistory(t *testing.T) {
	t.Parallel()

	svc := &fakeService{history: []assistant.ChatTurn{{ID: "a"}, {ID: "b"}}}

	rec := serve(New(0, nil, nil), svc, http.MethodGet, "/api/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var turns []assistant.ChatTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	assert.Len(t, turns, 2)
}

func TestTranslate_Post(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		translateFn: func(_ context.Context, text, source string) (assistant.TranslationResult, error) {
			assert.Equal(t, "hola", text)
			assert.Equal(t, "es", source)
			return assistant.TranslationResult{Source: "hola", Translated: "hello"}, nil
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/translate", []byte(`{"text":"hola","source":"es"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var result assistant.TranslationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hello", result.Translated)
}

func TestTranslate_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"unknown language": {
			err:  assistant.ErrUnknownLanguage,
			want: http.StatusBadRequest,
		},
		"provider failure": {
			err:  &assistant.ServiceError{Op: "translate", Err: errors.New("timeout")},
			want: http.StatusBadGateway,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{
				translateFn: func(context.Context, string, string) (assistant.TranslationResult, error) {
					return assistant.TranslationResult{}, tc.err
				},
			}

			rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/translate", []byte(`{"text":"x","source":"fr"}`))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestTranslate_GetEmptyPanel(t *testing.T) {
	t.Parallel()

	rec := serve(New(0, nil, nil), &fakeService{}, http.MethodGet, "/api/translate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTranslateImage_JSONBody(t *testing.T) {
	t.Parallel()

	img := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	svc := &fakeService{
		imageFn: func(_ context.Context, data []byte, mimeType, source string) (assistant.TranslationResult, error) {
			assert.Equal(t, img, data)
			assert.Equal(t, "image/jpeg", mimeType)
			assert.Equal(t, "es", source)
			return assistant.TranslationResult{Source: "(image)", Translated: "exit"}, nil
		},
	}

	body, err := json.Marshal(map[string]string{
		"image":     base64.StdEncoding.EncodeToString(img),
		"mime_type": "image/jpeg",
		"source":    "es",
	})
	require.NoError(t, err)

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/translate/image", body)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTranslateImage_Multipart(t *testing.T) {
	t.Parallel()

	img := []byte("fake png bytes")
	svc := &fakeService{
		imageFn: func(_ context.Context, data []byte, mimeType, source string) (assistant.TranslationResult, error) {
			assert.Equal(t, img, data)
			assert.Equal(t, "en", source)
			return assistant.TranslationResult{Translated: "salida"}, nil
		},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "sign.png")
	require.NoError(t, err)
	_, err = fw.Write(img)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source", "en"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/translate/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	New(0, nil, nil).Routes(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTranslateImage_EmptyPayload(t *testing.T) {
	t.Parallel()

	rec := serve(New(0, nil, nil), &fakeService{}, http.MethodPost, "/api/translate/image",
		[]byte(`{"image":"","source":"es"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWord_GetFetchesWhenEmpty(t *testing.T) {
	t.Parallel()

	fetched := assistant.DailyWordEntry{Word: "sol", Meaning: "sun"}
	svc := &fakeService{
		dailyFn: func(context.Context) assistant.DailyWordEntry { return fetched },
	}

	rec := serve(New(0, nil, nil), svc, http.MethodGet, "/api/word", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry assistant.DailyWordEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "sol", entry.Word)
}

func TestWord_GetServesCached(t *testing.T) {
	t.Parallel()

	cached := assistant.DailyWordEntry{Word: "luna", Meaning: "moon"}
	svc := &fakeService{
		daily: &cached,
		dailyFn: func(context.Context) assistant.DailyWordEntry {
			t.Fatal("cached entry must be served without a fetch")
			return assistant.DailyWordEntry{}
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodGet, "/api/word", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry assistant.DailyWordEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "luna", entry.Word)
}

func TestWord_RefreshAlwaysFetches(t *testing.T) {
	t.Parallel()

	cached := assistant.DailyWordEntry{Word: "luna"}
	svc := &fakeService{
		daily: &cached,
		dailyFn: func(context.Context) assistant.DailyWordEntry {
			return assistant.DailyWordEntry{Word: "estrella"}
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/word/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry assistant.DailyWordEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "estrella", entry.Word)
}

func TestLessons_EmptyBatchIsJSONArray(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		vocabularyFn: func(_ context.Context, category string) []assistant.VocabularyItem {
			assert.Equal(t, "travel", category)
			return nil
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodGet, "/api/lessons/travel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), "a failed batch is an empty array, never null")
}

func TestSpeak_ReturnsWAV(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		speechFn: func(_ context.Context, text string) (audio.Clip, error) {
			assert.Equal(t, "buenos días", text)
			return audio.Clip{SampleRate: 24000, Channels: 1, Samples: []float32{0, 0.5, -0.5}}, nil
		},
	}

	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/speak", []byte(`{"text":"buenos días"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF", string(rec.Body.Bytes()[:4]))
}

func TestSpeak_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"empty text":       {err: assistant.ErrEmptyInput, want: http.StatusBadRequest},
		"provider failure": {err: &assistant.ServiceError{Op: "synthesize", Err: errors.New("no audio")}, want: http.StatusBadGateway},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{
				speechFn: func(context.Context, string) (audio.Clip, error) {
					return audio.Clip{}, tc.err
				},
			}

			rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/speak", []byte(`{"text":"x"}`))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCapture_StartStop(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{samples: []float32{0.1, 0.2, 0.3}}
	tr := New(0, recorder, nil)
	svc := &fakeService{}

	rec := serve(tr, svc, http.MethodPost, "/api/capture/start", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, recorder.active)

	rec = serve(tr, svc, http.MethodPost, "/api/capture/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF", string(rec.Body.Bytes()[:4]))
	assert.False(t, recorder.active)
}

func TestCapture_StopWithoutRecording(t *testing.T) {
	t.Parallel()

	tr := New(0, &fakeRecorder{}, nil)
	rec := serve(tr, &fakeService{}, http.MethodPost, "/api/capture/stop", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCapture_DeviceUnavailable(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{startErr: &capture.CaptureError{Err: errors.New("no input device")}}
	rec := serve(New(0, recorder, nil), &fakeService{}, http.MethodPost, "/api/capture/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCapture_NoRecorderConfigured(t *testing.T) {
	t.Parallel()

	rec := serve(New(0, nil, nil), &fakeService{}, http.MethodPost, "/api/capture/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionReset(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := serve(New(0, nil, nil), svc, http.MethodPost, "/api/session/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.resets)
}
