package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/config"
)

func matcherConfig(baseURL string) config.MatcherConfig {
	return config.MatcherConfig{
		Backend:           "anthropic",
		Model:             "claude-3-haiku-20240307",
		APIKey:            config.Secret("test-key"),
		BaseURL:           baseURL,
		Timeout:           config.Duration(2 * time.Second),
		RequestsPerSecond: 100,
		Burst:             10,
		MaxRetries:        2,
	}
}

func scoreResponse(text string) []byte {
	resp := map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	}
	data, _ := json.Marshal(resp)
	return data
}

func TestAnthropicMatcherScore(t *testing.T) {
	var gotBody anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(scoreResponse("0.85"))
	}))
	defer server.Close()

	m, err := NewAnthropicMatcher(matcherConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	score, err := m.Score(context.Background(), "Click the checkout button", "scene_change at 4.20s")
	require.NoError(t, err)
	assert.Equal(t, 0.85, score)
	assert.Contains(t, gotBody.Messages[0].Content, "Click the checkout button")
	assert.Contains(t, gotBody.Messages[0].Content, "scene_change at 4.20s")
	assert.Zero(t, gotBody.Temperature)
}

func TestAnthropicMatcherRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(scoreResponse("0.4"))
	}))
	defer server.Close()

	m, err := NewAnthropicMatcher(matcherConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	score, err := m.Score(context.Background(), "step", "event")
	require.NoError(t, err)
	assert.Equal(t, 0.4, score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicMatcherExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m, err := NewAnthropicMatcher(matcherConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "step", "event")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatcherUnavailable)
}

func TestAnthropicMatcherClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad model"}}`))
	}))
	defer server.Close()

	m, err := NewAnthropicMatcher(matcherConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "step", "event")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatcherUnavailable)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicMatcherRejectsBadScores(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "non numeric", text: "probably yes"},
		{name: "above one", text: "1.5"},
		{name: "negative", text: "-0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(scoreResponse(tt.text))
			}))
			defer server.Close()

			m, err := NewAnthropicMatcher(matcherConfig(server.URL), zap.NewNop())
			require.NoError(t, err)

			_, err = m.Score(context.Background(), "step", "event")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMatcherUnavailable)
		})
	}
}

func TestAnthropicMatcherTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	cfg := matcherConfig(server.URL)
	cfg.Timeout = config.Duration(50 * time.Millisecond)
	cfg.MaxRetries = 0
	m, err := NewAnthropicMatcher(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "step", "event")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatcherUnavailable)
}

func TestNewMatcherSelectsBackend(t *testing.T) {
	m, err := NewMatcher(config.MatcherConfig{Backend: "heuristic"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &HeuristicMatcher{}, m)

	_, err = NewMatcher(config.MatcherConfig{Backend: "psychic"}, zap.NewNop())
	require.Error(t, err)
}
