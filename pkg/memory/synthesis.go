package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const synthesisSystemPrompt = `You are a memory analyst synthesizing retrieved memories into a report.

- Capture the relevant information from the memories, with specific details and context.
- Organize by topic or chronology as appropriate.
- Note contradictions, gaps, or uncertainties.
- Assess how well the memories actually answer the query; low similarity scores mean tangential matches and it is fine to say so.`

const lowConfidenceNote = "NOTE: every similarity score is below 0.5, indicating weak semantic relevance. Evaluate carefully whether these memories actually address the query."

/*
Coordinator runs optional post-processing of fetched memories through the
external summarization model. It is strictly best-effort: whatever goes
wrong, the caller gets its raw records back with a warning attached, never
an error.
*/
type Coordinator struct {
	summarizer Summarizer
	timeout    time.Duration
}

type CoordinatorOption func(*Coordinator)

func NewCoordinator(summarizer Summarizer, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		summarizer: summarizer,
		timeout:    60 * time.Second,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// WithSynthesisTimeout bounds a single summarization call.
func WithSynthesisTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

/*
Synthesize condenses records into a natural-language digest. query gives the
model context and may be empty for direct id fetches; scores maps memory id
to similarity when the records came from recall. The second return value is
a non-fatal warning, set whenever the digest fell back to a plain listing.
*/
func (c *Coordinator) Synthesize(ctx context.Context, query string, records []*Memory, scores map[string]float64) (string, string) {
	if len(records) == 0 {
		return "No memories found.", ""
	}

	if c.summarizer == nil {
		return formatAsList(records), "summarization model not configured; returning plain listing"
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	digest, err := c.summarizer.Summarize(ctx, synthesisSystemPrompt, c.buildPrompt(query, records, scores))
	if err != nil || digest == "" {
		log.Warn("synthesis degraded to raw results", "records", len(records), "err", err)
		return formatAsList(records), fmt.Sprintf("synthesis unavailable: %v", err)
	}

	return digest, ""
}

func (c *Coordinator) buildPrompt(query string, records []*Memory, scores map[string]float64) string {
	if query == "" {
		query = "Summarize these memories"
	}

	blocks := make([]string, 0, len(records))
	for _, m := range records {
		var parts []string
		if score, ok := scores[m.ID]; ok {
			parts = append(parts, fmt.Sprintf("[similarity: %.2f]", score))
		}
		parts = append(parts, "[type: "+m.Type+"]", "[id: "+m.ID+"]")
		if m.Subject != "" {
			parts = append(parts, "[subject: "+m.Subject+"]")
		}
		parts = append(parts, "\n"+m.Content)
		blocks = append(blocks, strings.Join(parts, " "))
	}

	note := ""
	if allLowConfidence(records, scores) {
		note = "\n" + lowConfidenceNote + "\n"
	}

	return fmt.Sprintf(
		"Query: %s\n\nFound %d memories to analyze:%s\n\n%s\n\nWrite a report synthesizing these memories in response to the query:",
		query, len(records), note, strings.Join(blocks, "\n\n---\n\n"),
	)
}

func allLowConfidence(records []*Memory, scores map[string]float64) bool {
	if len(scores) == 0 {
		return false
	}
	for _, m := range records {
		if score, ok := scores[m.ID]; ok && score >= 0.5 {
			return false
		}
	}
	return true
}

// formatAsList is the degraded output when no summarizer is available.
func formatAsList(records []*Memory) string {
	lines := make([]string, 0, len(records))
	for _, m := range records {
		subject := ""
		if m.Subject != "" {
			subject = " (" + m.Subject + ")"
		}
		preview := m.Content
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		lines = append(lines, fmt.Sprintf("- [%s]%s: %s", m.Type, subject, preview))
	}
	return strings.Join(lines, "\n")
}
