package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/config"
)

// fakeBackend serves an OpenAI-compatible SSE stream. When hang is set it stops
// after the chunks and holds the connection until the client goes away.
type fakeBackend struct {
	chunks  []string
	hang    bool
	status  int

	mu      sync.Mutex
	lastReq openai.ChatCompletionRequest
}

func (b *fakeBackend) request() openai.ChatCompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastReq
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.lastReq = req
	b.mu.Unlock()
	if b.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.status)
		fmt.Fprint(w, `{"error":{"message":"backend exploded","type":"server_error"}}`)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, c := range b.chunks {
		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": c}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	if b.hang {
		<-r.Context().Done()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func newTestTransport(t *testing.T, b *fakeBackend, timeout time.Duration) *Transport {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	client := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	return NewTransport(client, "gpt-4o", timeout)
}

func collect(ch <-chan chat.Fragment) []chat.Fragment {
	var out []chat.Fragment
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestTransport_StreamsFragmentsThenDone(t *testing.T) {
	b := &fakeBackend{chunks: []string{"AES ", "is ", "a ", "block cipher."}}
	tr := newTestTransport(t, b, time.Second)

	history := []chat.Turn{{Role: chat.RoleUser, Content: "What is AES?"}}
	frags := collect(tr.Stream(context.Background(), history, "system prompt"))

	require.Len(t, frags, 5)
	for i, want := range b.chunks {
		require.Equal(t, chat.Text(want), frags[i])
	}
	require.Equal(t, chat.FragmentDone, frags[4].Kind)

	req := b.request()
	require.True(t, req.Stream)
	require.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Equal(t, "system prompt", req.Messages[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	require.Equal(t, "What is AES?", req.Messages[1].Content)
}

func TestTransport_BackendErrorIsTransportFailure(t *testing.T) {
	b := &fakeBackend{status: http.StatusInternalServerError}
	tr := newTestTransport(t, b, time.Second)

	frags := collect(tr.Stream(context.Background(), nil, "sys"))
	require.Len(t, frags, 1)
	require.Equal(t, chat.FragmentFailed, frags[0].Kind)
	require.ErrorIs(t, frags[0].Err, chat.ErrTransport)
}

func TestTransport_Timeout(t *testing.T) {
	b := &fakeBackend{chunks: []string{"partial"}, hang: true}
	tr := newTestTransport(t, b, 200*time.Millisecond)

	frags := collect(tr.Stream(context.Background(), nil, "sys"))
	require.Len(t, frags, 2)
	require.Equal(t, chat.Text("partial"), frags[0])
	require.Equal(t, chat.FragmentFailed, frags[1].Kind)
	require.ErrorIs(t, frags[1].Err, chat.ErrTimeout)
	require.Equal(t, "timeout", chat.Reason(frags[1].Err))
}

func TestTransport_CancelStopsWithoutDone(t *testing.T) {
	b := &fakeBackend{chunks: []string{"first"}, hang: true}
	tr := newTestTransport(t, b, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	ch := tr.Stream(ctx, nil, "sys")

	first := <-ch
	require.Equal(t, chat.Text("first"), first)
	cancel()

	rest := collect(ch)
	require.Empty(t, rest)
}

func TestTransport_AssistantHistoryRole(t *testing.T) {
	b := &fakeBackend{}
	tr := newTestTransport(t, b, time.Second)

	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, Content: "a"},
	}
	frags := collect(tr.Stream(context.Background(), history, ""))
	require.Equal(t, []chat.Fragment{chat.Done()}, frags)
	req := b.request()
	require.Len(t, req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[1].Role)
}
