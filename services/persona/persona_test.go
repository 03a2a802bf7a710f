package persona

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"nudfans-backend/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPersonaFile(t *testing.T) {
	p, err := Load("../../personas/default.yaml")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
	assert.Len(t, p.Fallbacks, 3)
	assert.Equal(t, 20, p.HistoryLimit)

	rendered := p.For("alice", "Alice")
	assert.Contains(t, rendered.SystemPrompt, "Alice (@alice)")
	assert.NotContains(t, rendered.SystemPrompt, "{{")

	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Name, def.Name)
}

func TestParseRejectsIncompletePersona(t *testing.T) {
	_, err := Parse([]byte("name: x\nsystem_prompt: \"\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("system_prompt: hi\nfallbacks: []\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("system_prompt: [unclosed"))
	assert.Error(t, err)
}

type stubGenerator struct {
	reply   string
	err     error
	history []Turn
}

func (s *stubGenerator) GenerateReply(_ context.Context, _ Persona, history []Turn, _ string) (string, error) {
	s.history = history
	return s.reply, s.err
}

func TestAgentUsesGenerator(t *testing.T) {
	gen := &stubGenerator{reply: "  hi there  "}
	agent := NewAgent(gen, time.Second)

	history := make([]Turn, 30)
	text, generated := agent.Reply(context.Background(), Default(), history, "hello")
	assert.True(t, generated)
	assert.Equal(t, "hi there", text)
	assert.Len(t, gen.history, Default().HistoryLimit)
}

func TestAgentFallsBackOnFailure(t *testing.T) {
	p := Default()
	for _, gen := range []Generator{
		&stubGenerator{err: unavailable(errors.New("boom"))},
		&stubGenerator{reply: "   "},
		nil,
	} {
		agent := NewAgent(gen, time.Second)
		agent.pick = func(int) int { return 1 }
		text, generated := agent.Reply(context.Background(), p, nil, "hello")
		assert.False(t, generated)
		assert.Equal(t, p.Fallbacks[1], text)
	}
}

func TestOpenAIClientSendsPersonaAndHistory(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hey you"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1/", "key", "test-model")
	reply, err := client.GenerateReply(context.Background(), Default().For("alice", ""),
		[]Turn{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}, "how are you?")
	require.NoError(t, err)
	assert.Equal(t, "hey you", reply)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "@alice")
	assert.Equal(t, Turn{Role: RoleUser, Content: "how are you?"}, got.Messages[3])
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	reply, err := NewOpenAIClient(srv.URL, "key", "").GenerateReply(context.Background(), Default(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenAIClientClientErrorIsUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "key", "").GenerateReply(context.Background(), Default(), nil, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLLMUnavailable)
	assert.Contains(t, err.Error(), "bad key")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	_, err = NewOpenAIClient(srv.URL, "", "").GenerateReply(context.Background(), Default(), nil, "hi")
	assert.Equal(t, apperrors.KindLLMUnavailable, apperrors.KindOf(err))
}
