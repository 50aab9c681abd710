package generator

import "context"

// Generator sends a prompt to a hosted language model and returns its text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
