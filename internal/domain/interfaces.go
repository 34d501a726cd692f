package domain

import (
	"context"
)

// ChatMessage is a single prompt message sent to the text generator.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest is the narrow request shape the capabilities need from
// the text-generation service.
type CompletionRequest struct {
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float32
}

// TextGenerator produces text for a prompt. Implementations must honour ctx
// and return an error for any unavailability; callers own the fallback.
type TextGenerator interface {
	Generate(ctx context.Context, req *CompletionRequest) (string, error)
}

// DrugLabel is the subset of a drug label the medication capability reads.
type DrugLabel struct {
	GenericName  string
	BrandName    string
	Warnings     string
	BoxedWarning string
}

// LabelSource looks up regulator drug labels.
type LabelSource interface {
	// SearchGeneric finds a label by canonical generic name.
	SearchGeneric(ctx context.Context, name string) (*DrugLabel, error)

	// SearchBrand finds a label by brand name.
	SearchBrand(ctx context.Context, name string) (*DrugLabel, error)
}
