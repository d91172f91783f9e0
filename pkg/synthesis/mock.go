package synthesis

import (
	"context"

	"github.com/engramdb/engram/pkg/errors"
)

// MockSummarizer returns a canned digest, or fails on demand, for tests.
type MockSummarizer struct {
	Digest string
	Fail   bool

	// Calls records the prompts received, in order.
	Calls []string
}

func (m *MockSummarizer) Summarize(ctx context.Context, system, prompt string) (string, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Fail {
		return "", errors.SynthesisService(nil, "mock summarizer configured to fail")
	}
	if m.Digest == "" {
		return "mock digest", nil
	}
	return m.Digest, nil
}
