package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/cryptosec-go/internal/chat"
)

// Client is the subset of openai.Client used by the transport.
type Client interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Streamer opens one streamed exchange with the backend. The returned channel
// yields text fragments followed by exactly one Done or Failed marker, or is
// closed without a marker when ctx is cancelled.
type Streamer interface {
	Stream(ctx context.Context, history []chat.Turn, systemPrompt string) <-chan chat.Fragment
}
