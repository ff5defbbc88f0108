package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Key string `json:"key"`
	Num int    `json:"num"`
}

func TestDecodeJSONResponsePlain(t *testing.T) {
	var p payload
	require.NoError(t, DecodeJSONResponse(`{"key": "value", "num": 42}`, &p))
	require.Equal(t, payload{Key: "value", Num: 42}, p)
}

func TestDecodeJSONResponseWithCodeFence(t *testing.T) {
	var p payload
	require.NoError(t, DecodeJSONResponse("```json\n{\"key\": \"value\"}\n```", &p))
	require.Equal(t, "value", p.Key)
}

func TestDecodeJSONResponseWithPlainFence(t *testing.T) {
	var p payload
	require.NoError(t, DecodeJSONResponse("```\n{\"key\": \"value\"}\n```", &p))
	require.Equal(t, "value", p.Key)
}

func TestDecodeJSONResponseSurroundedByProse(t *testing.T) {
	var p payload
	require.NoError(t, DecodeJSONResponse("Here you go:\n{\"key\": \"value\"}\nHope it helps.", &p))
	require.Equal(t, "value", p.Key)
}

func TestDecodeJSONResponseInvalid(t *testing.T) {
	var p payload
	require.Error(t, DecodeJSONResponse("not json at all", &p))
}

func TestDecodeJSONResponseEmpty(t *testing.T) {
	var p payload
	require.ErrorIs(t, DecodeJSONResponse("  \n ", &p), ErrEmptyResponse)
}

func TestStripCodeFenceUnterminated(t *testing.T) {
	require.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}"))
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL, client: srv.Client()}
	out, err := p.Generate(context.Background(), Request{System: "sys", Prompt: "hi", MaxTokens: 10, JSON: true})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, out)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestOpenAIProviderNotConfigured(t *testing.T) {
	p := &OpenAIProvider{Model: "gpt-4o-mini"}
	require.False(t, p.IsConfigured())
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
}

func TestOllamaProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "json", body["format"])
		w.Write([]byte(`{"message":{"content":"hello"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider("qwen2.5:7b", srv.URL+"/")
	out, err := p.Generate(context.Background(), Request{Prompt: "hi", JSON: true})
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider("m", srv.URL).Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}
