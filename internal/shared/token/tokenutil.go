// Package tokenutil estimates token counts for budgeting purposes. It
// prefers an accurate tiktoken encoding and falls back to a cheap
// character-ratio heuristic when the encoding cannot be loaded (e.g. no
// network access to fetch the BPE ranks on first use).
package tokenutil

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// encoding is the lazily-loaded tiktoken encoder for cl100k_base. It is nil
// when the encoder could not be loaded, in which case callers fall back to
// the character-ratio heuristic.
var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

func loadEncoding() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoding = nil
		return
	}
	encoding = enc
}

// defaultCharsPerToken is the character-ratio fallback for providers with no
// more specific ratio.
const defaultCharsPerToken = 4.0

// anthropicCharsPerToken is the fallback ratio for Anthropic/Bedrock models.
const anthropicCharsPerToken = 3.8

// CountTokens returns the estimated token count of text using tiktoken when
// available, falling back to a character-ratio estimate otherwise.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(loadEncoding)
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return charRatioEstimate(text, defaultCharsPerToken)
}

// CountTokensForProvider estimates tokens using a provider-specific
// character ratio when the accurate tokenizer is unavailable.
func CountTokensForProvider(text, provider string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(loadEncoding)
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	ratio := defaultCharsPerToken
	switch strings.ToLower(provider) {
	case "anthropic", "bedrock":
		ratio = anthropicCharsPerToken
	}
	return charRatioEstimate(text, ratio)
}

func charRatioEstimate(text string, charsPerToken float64) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	count := int(float64(runes)/charsPerToken + 0.5)
	if count < 1 {
		count = 1
	}
	return count
}

// TokensToChars reverse-maps a token budget to an approximate character
// budget, for providers/situations where only a character count is useful
// (e.g. truncating raw text before an accurate count is available).
func TokensToChars(tokens int, charsPerToken float64) int {
	if tokens <= 0 {
		return 0
	}
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return int(float64(tokens) * charsPerToken)
}

// EstimateFast returns a fast, approximate token estimate without invoking
// the tokenizer: the larger of a whitespace word count and runes/4. Used on
// hot paths (e.g. per-message budgeting) where CountTokens' tokenizer call
// would be too slow.
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))
	runeEstimate := utf8.RuneCountInString(trimmed) / 4
	if words > runeEstimate {
		return words
	}
	return runeEstimate
}

// TruncateToTokens truncates text so that its estimated token count is at
// most maxTokens, appending "..." when truncation occurs. maxTokens <= 0 is
// a no-op (the caller did not set a limit).
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if CountTokens(text) <= maxTokens {
		return text
	}

	// Binary-search the largest rune-prefix whose estimated token count fits,
	// then append the truncation marker.
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if CountTokens(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo <= 0 {
		return "..."
	}
	return strings.TrimRight(string(runes[:lo]), " \t\n") + "..."
}

// MessagePart is one part of a multi-part message content block.
type MessagePart struct {
	Role string
	Text string
}

// messageOverhead is the fixed per-message token overhead added on top of
// content tokens, matching the convention used by every chat-completion
// style provider (role/name/metadata framing tokens).
const messageOverhead = 4

// EstimateMessages sums CountTokens over every part's text plus a fixed
// per-message overhead.
func EstimateMessages(parts []MessagePart) int {
	total := 0
	for _, p := range parts {
		total += CountTokens(p.Text) + messageOverhead
	}
	return total
}
