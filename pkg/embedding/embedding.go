// Package embedding provides clients for the external embedding service.
// Implementations satisfy the memory.Embedder contract; the store never
// talks to a model API directly.
package embedding

// DefaultMaxChars is the default input budget before vectorization.
// Embedding models have a fixed context window and tokenization ratios vary
// by content; 6000 characters leaves margin for overhead tokens on common
// 8192-token models. Oversized input is truncated, not rejected; callers
// storing very long content should pre-chunk it.
const DefaultMaxChars = 6000

const truncationMarker = " [truncated for embedding]"

// Truncate cuts text to at most maxChars, preserving the head (type and
// subject prefixes carry the most semantic signal). maxChars <= 0 applies
// the default.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(text) <= maxChars {
		return text
	}
	cut := maxChars - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + truncationMarker
}
