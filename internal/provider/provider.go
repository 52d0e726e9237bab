package provider

import (
	"context"
	"errors"
)

// ErrUpstream marks any failure of the external text-generation provider,
// transport faults and non-success responses alike. Callers do not retry.
var ErrUpstream = errors.New("upstream provider failure")

// Result holds one provider reply.
type Result struct {
	// Text is the generated recommendation text.
	Text string

	// Raw is the unparsed provider response body, kept for archival.
	Raw []byte
}

// Generator produces a recommendation for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}
