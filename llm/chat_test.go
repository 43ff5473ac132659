package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-agent/config"
	"video-agent/provider"
)

func TestChatClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "write about owls", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Owls hunt at night.  "}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, srv.Client())
	out, err := c.Complete(context.Background(), "you are a writer", "write about owls")
	require.NoError(t, err)
	assert.Equal(t, "Owls hunt at night.", out)
}

func TestChatClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatConfig{Name: "groq", BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	_, err := c.Complete(context.Background(), "", "hi")

	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "groq", pe.Provider)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Contains(t, pe.Body, "rate limited")
}

func TestChatClientMissingKey(t *testing.T) {
	c := NewChatClient(ChatConfig{}, http.DefaultClient)
	_, err := c.Complete(context.Background(), "", "hi")
	assert.True(t, errors.Is(err, provider.ErrMissingKey))
}

type stubCompleter string

func (s stubCompleter) Complete(context.Context, string, string) (string, error) {
	return string(s), nil
}

func TestCompleteJSONStripsFences(t *testing.T) {
	var out struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	reply := stubCompleter("```json\n{\"title\":\"Owls\",\"tags\":[\"birds\"]}\n```")
	require.NoError(t, CompleteJSON(context.Background(), reply, "", "", &out))
	assert.Equal(t, "Owls", out.Title)
	assert.Equal(t, []string{"birds"}, out.Tags)

	err := CompleteJSON(context.Background(), stubCompleter("not json"), "", "", &out)
	assert.ErrorContains(t, err, "parse model JSON")
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), config.LLMConfig{Provider: "groq", Model: "llama"}, config.Secrets{GroqKey: "g"}, http.DefaultClient)
	require.NoError(t, err)
	chat, ok := c.(*ChatClient)
	require.True(t, ok)
	assert.Equal(t, GroqBaseURL, chat.baseURL)

	_, err = New(context.Background(), config.LLMConfig{Provider: "gemini"}, config.Secrets{}, http.DefaultClient)
	assert.ErrorIs(t, err, provider.ErrMissingKey)

	_, err = New(context.Background(), config.LLMConfig{Provider: "nope"}, config.Secrets{}, http.DefaultClient)
	assert.Error(t, err)
}
