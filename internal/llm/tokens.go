package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// CountTokens estimates the token footprint of a conversation. It uses the
// cl100k_base encoding when available and falls back to a bytes/4 heuristic
// when the encoding cannot be loaded (offline environments).
func CountTokens(messages []Message) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})

	total := 0
	for _, msg := range messages {
		// Per-message overhead for role and separators.
		total += 4
		if encoder != nil {
			total += len(encoder.Encode(msg.Content, nil, nil))
			continue
		}
		total += len(msg.Content) / 4
	}
	return total
}

// CountText estimates tokens for a single string.
func CountText(text string) int {
	return CountTokens([]Message{{Role: RoleUser, Content: text}})
}
