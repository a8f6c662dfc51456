package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens returns the token count of text under the cl100k encoding.
// Falls back to a rough char/4 estimate if the encoding is unavailable.
func CountTokens(text string) int {
	encOnce.Do(func() {
		enc, _ = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
