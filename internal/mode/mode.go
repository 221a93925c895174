// Package mode maps a conversation mode to the system prompt sent with each request.
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for any identifier outside the closed mode set.
var ErrInvalidMode = errors.New("invalid mode")

// Mode selects an additive instruction appended to the base persona.
type Mode string

const (
	Normal    Mode = "normal"
	Reasoning Mode = "reasoning"
	Search    Mode = "search"
)

// BasePersona is the instruction every system prompt starts with.
const BasePersona = "You are CryptoSec, an expert assistant specializing in cryptography and network security."

const (
	reasoningInstructions = " Provide detailed reasoning and explanations for your answers. Break down complex concepts step by step."
	searchInstructions    = " When you don't know something, suggest what to search for online. Provide specific search terms that would be helpful."
)

var fragments = map[Mode]string{
	Normal:    "",
	Reasoning: reasoningInstructions,
	Search:    searchInstructions,
}

// All lists the supported modes in display order.
func All() []Mode {
	return []Mode{Normal, Reasoning, Search}
}

// Parse validates a raw identifier, typically an URL path segment.
func Parse(s string) (Mode, error) {
	m := Mode(strings.TrimSpace(s))
	if _, ok := fragments[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m belongs to the closed set.
func (m Mode) Valid() bool {
	_, ok := fragments[m]
	return ok
}

func (m Mode) String() string { return string(m) }

// ComposePrompt returns the base persona followed by the mode's fragment.
func ComposePrompt(m Mode) (string, error) {
	fragment, ok := fragments[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}

	var b strings.Builder
	b.WriteString(BasePersona)
	b.WriteString(fragment)
	return b.String(), nil
}
