package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patientflow/pkg/metrics"
)

func TestExtractionPromptEmbedsTranscript(t *testing.T) {
	p := ExtractionPrompt("patient reports a headache")
	assert.Contains(t, p, "TRANSCRIPT:\npatient reports a headache")
	assert.NotContains(t, p, "{transcript}")
	assert.Contains(t, p, `"additional_notes"`)
}

func TestExtractNotesSendsPromptAndReturnsContent(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"diagnosis\":\"migraine\"}"}}]}`))
	}))
	defer srv.Close()

	m := metrics.NewTest()
	c := NewOpenAIClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, m)
	out, err := c.ExtractNotes(context.Background(), "throbbing headache")
	require.NoError(t, err)

	assert.Equal(t, `{"diagnosis":"migraine"}`, out)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 0.001)
	assert.Equal(t, 2000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "throbbing headache")
}

func TestExtractNotesFailureIsCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, metrics.NewTest())
	_, err := c.ExtractNotes(context.Background(), "x")
	assert.Error(t, err)
}
