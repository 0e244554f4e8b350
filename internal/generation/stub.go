package generation

import (
	"context"
	"strings"
)

// StubGenerator answers offline by echoing the retrieved context.
type StubGenerator struct{}

// NewStubGenerator returns a StubGenerator.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

// Generate returns the trimmed context, or a fixed sentence when there is none.
func (g *StubGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(contextText)
	if answer == "" {
		return "No context was provided.", nil
	}
	return answer, nil
}

func (g *StubGenerator) Model() string { return "stub" }

func (g *StubGenerator) Close() error { return nil }
