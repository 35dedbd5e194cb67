package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/domain"
)

func chatServer(t *testing.T, reply string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": reply},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}

func TestClient_Complete(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := chatServer(t, `{"ok":true}`, &seen)
	defer srv.Close()

	c, err := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini", RateLimit: 5, Burst: 2}, nil)
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), "system prompt", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)

	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "hello", seen.Messages[1].Content)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"```\n{\"a\":1}\n```":            `{"a":1}`,
		"Sure! Here it is: {\"a\":1} ok": `{"a":1}`,
		`{"a":{"b":2}}`:                  `{"a":{"b":2}}`,
		"no json":                        "no json",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractJSON(in), in)
	}
}

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestAdvisor_Geocode(t *testing.T) {
	f := &fakeCompleter{reply: "```json\n{\"latitude\": 15.14, \"longitude\": 76.92}\n```"}
	a := NewAdvisor(f)

	c, err := a.Geocode(context.Background(), domain.Location{District: "Ballari", State: "Karnataka"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 15.14, c.Latitude, 1e-9)
	assert.Contains(t, f.user, "District: Ballari")

	f.reply = `{"latitude": null, "longitude": null}`
	c, err = a.Geocode(context.Background(), domain.Location{Market: "Nowhere"})
	require.NoError(t, err)
	assert.Nil(t, c)

	f.reply = "I don't know"
	_, err = a.Geocode(context.Background(), domain.Location{Market: "Nowhere"})
	require.Error(t, err)
}

func TestAdvisor_SuggestNearby(t *testing.T) {
	f := &fakeCompleter{reply: `{"markets": [
		{"market": "Adoni", "district": "Kurnool", "state": "Andhra Pradesh"},
		{"market": "kurnool", "district": "Kurnool", "state": "Andhra Pradesh"},
		{"market": "", "district": "Kurnool"},
		{"market": "Nandyal", "district": "Nandyal", "state": "Andhra Pradesh"},
		{"market": "Yemmiganur", "district": "Kurnool", "state": "Andhra Pradesh"}
	]}`}
	a := NewAdvisor(f)

	locs, err := a.SuggestNearby(context.Background(), domain.Location{Market: "Kurnool", State: "Andhra Pradesh"}, 2)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Adoni", locs[0].Market)
	assert.Equal(t, "Nandyal", locs[1].Market)
	assert.Contains(t, f.system, "adjacent")
	assert.Contains(t, f.user, "at most 2")

	f.err = errors.New("offline")
	_, err = a.SuggestNearby(context.Background(), domain.Location{Market: "Kurnool"}, 2)
	require.Error(t, err)
}
