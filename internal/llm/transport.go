// Package llm talks to the OpenAI-compatible language-model backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/logger"
)

// DefaultTimeout bounds the wall-clock duration of a single exchange.
const DefaultTimeout = 30 * time.Second

// Transport streams chat completions. It makes exactly one outbound request per
// Stream call and never retries.
type Transport struct {
	client  Client
	model   string
	timeout time.Duration
}

// NewTransport creates a transport for model. A non-positive timeout falls back
// to DefaultTimeout.
func NewTransport(client Client, model string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{client: client, model: model, timeout: timeout}
}

// Stream implements Streamer.
func (t *Transport) Stream(ctx context.Context, history []chat.Turn, systemPrompt string) <-chan chat.Fragment {
	out := make(chan chat.Fragment)
	go t.run(ctx, history, systemPrompt, out)
	return out
}

func (t *Transport) run(ctx context.Context, history []chat.Turn, systemPrompt string, out chan<- chat.Fragment) {
	defer close(out)

	exCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// terminal markers are only suppressed by the caller's cancellation, not by
	// the exchange deadline.
	terminal := func(f chat.Fragment) {
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(exCtx.Err(), context.DeadlineExceeded) {
			logger.L.Warn("exchange timed out", "timeout", t.timeout)
			terminal(chat.Failed(fmt.Errorf("%w after %s", chat.ErrTimeout, t.timeout)))
			return
		}
		logger.L.Error("exchange failed", "error", err)
		terminal(chat.Failed(fmt.Errorf("%w: %v", chat.ErrTransport, err)))
	}

	stream, err := t.client.CreateChatCompletionStream(exCtx, t.request(history, systemPrompt))
	if err != nil {
		fail(err)
		return
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			terminal(chat.Done())
			return
		}
		if err != nil {
			fail(err)
			return
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case out <- chat.Text(resp.Choices[0].Delta.Content):
		case <-exCtx.Done():
			fail(exCtx.Err())
			return
		}
	}
}

func (t *Transport) request(history []chat.Turn, systemPrompt string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: messages,
		Stream:   true,
	}
}
