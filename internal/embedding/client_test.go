package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"orakle/internal/config"
)

func writeEmbeddingStub(w http.ResponseWriter, dims int) {
	resp := map[string]any{"data": []map[string]any{{"embedding": make([]float32, dims)}}}
	b, _ := json.Marshal(resp)
	_, _ = w.Write(b)
}

func TestEmbedText_BearerAuthorization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeEmbeddingStub(w, 3)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	out, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 3)
}

func TestEmbedText_CustomHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc", r.Header.Get("X-Api-Key"))
		writeEmbeddingStub(w, 1)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "X-Api-Key", APIKey: "abc"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedText_CountMismatchIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddingStub(w, 1)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x", "y"})
	require.Error(t, err)
}

func TestEmbedText_NoInputsIsError(t *testing.T) {
	_, err := EmbedText(context.Background(), config.EmbeddingConfig{}, nil)
	require.Error(t, err)
}
