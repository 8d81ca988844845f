// Package insights proxies log analysis to an external generative-AI text
// service. Failures are converted to fixed fallback strings so the UI never
// sees a hard error from this path.
package insights

import "context"

// Provider is a single-shot text completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
	IsAvailable() bool
}
