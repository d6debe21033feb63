package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/pkg/logging"
)

func testBuffer() *audio.PCMBuffer {
	return &audio.PCMBuffer{Samples: make([]int16, 1600), SampleRate: 16000, SampleWidth: 2, Channels: 1}
}

func TestOpenAITranscriberSendsWAVAndLanguage(t *testing.T) {
	var gotModel, gotLanguage, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" مرحبا "}`))
	}))
	defer srv.Close()

	tr, err := NewOpenAITranscriber("sk-test", srv.URL+"/v1", "", srv.Client(), logging.Discard())
	require.NoError(t, err)

	text, err := tr.Transcribe(context.Background(), testBuffer(), "ar-SA")
	require.NoError(t, err)
	assert.Equal(t, "مرحبا", text)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "ar", gotLanguage)
	assert.Equal(t, "voice.wav", gotFilename)
}

func TestOpenAITranscriberFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream"}}`))
	}))
	defer srv.Close()

	tr, err := NewOpenAITranscriber("sk-test", srv.URL+"/v1", "whisper-1", srv.Client(), logging.Discard())
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), testBuffer(), "en-US")
	assert.ErrorIs(t, err, ErrTranscription)

	_, err = tr.Transcribe(context.Background(), &audio.PCMBuffer{}, "en-US")
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestOpenAITranscriberEmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	tr, err := NewOpenAITranscriber("sk-test", srv.URL+"/v1", "whisper-1", srv.Client(), logging.Discard())
	require.NoError(t, err)
	_, err = tr.Transcribe(context.Background(), testBuffer(), "")
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestIsoLanguage(t *testing.T) {
	assert.Equal(t, "ar", isoLanguage("ar-EG"))
	assert.Equal(t, "en", isoLanguage("en-US"))
	assert.Equal(t, "", isoLanguage(""))
	assert.Equal(t, "", isoLanguage("!!"))
}

func TestNewOpenAITranscriberRequiresKey(t *testing.T) {
	_, err := NewOpenAITranscriber("", "", "", nil, nil)
	assert.Error(t, err)
}
