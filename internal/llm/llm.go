package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyCompletion is returned when the service answers with no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// Purpose tells a generator which pipeline step a call belongs to.
type Purpose string

const (
	PurposeClassify Purpose = "classify"
	PurposeRespond  Purpose = "respond"
)

// Options are the generation parameters for a single call.
type Options struct {
	Purpose     Purpose
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Subject of the message the prompt was built from. Model-backed
	// generators ignore it.
	Subject string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Name() string
}
