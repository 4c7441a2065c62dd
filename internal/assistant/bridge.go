// Package assistant answers free-form questions about recent operations data
// by handing a snapshot of every table to a hosted language model.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"opsdash/internal/storage"
)

const (
	DefaultSampleSize = 30
	NoAnswer          = "No answer generated."

	questionMarker = "\n\nUser question:\n"
	preamble       = "You are an operations assistant. Answer questions using ONLY the data provided from these tables: " +
		"manufacturing_records, testing_records, field_records, sales_records.\n\n" +
		"Here is the latest data in JSON format:\n"
)

var (
	ErrNotConfigured = errors.New("assistant: no language model credential configured")
	ErrEmptyQuestion = errors.New("assistant: question is required")
	ErrGenerate      = errors.New("assistant: failed to generate answer")
)

// Provider is one blocking text-generation call against a hosted model.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Bridge couples the record store with a Provider. A Bridge with a nil
// Provider is valid and reports ErrNotConfigured on every question.
type Bridge struct {
	store      storage.Store
	provider   Provider
	sampleSize int
	logger     *zap.Logger
}

func NewBridge(store storage.Store, provider Provider, sampleSize int, logger *zap.Logger) *Bridge {
	if sampleSize <= 0 || sampleSize > 100 {
		sampleSize = DefaultSampleSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{store: store, provider: provider, sampleSize: sampleSize, logger: logger}
}

// Configured reports whether questions can be answered at all.
func (b *Bridge) Configured() bool {
	return b != nil && b.provider != nil
}

// Answer fetches the latest rows of each table, builds the prompt and makes
// exactly one provider call. Nothing is fetched when the question is empty
// or no provider is configured.
func (b *Bridge) Answer(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	if !b.Configured() {
		return "", ErrNotConfigured
	}

	start := time.Now()
	snap, err := storage.FetchSnapshot(ctx, b.store, b.sampleSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	prompt, err := BuildPrompt(snap, question)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	text, err := b.provider.Generate(ctx, prompt)
	if err != nil {
		b.logger.Error("assistant generate failed",
			zap.String("provider", b.provider.Name()),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	b.logger.Info("assistant answered",
		zap.String("provider", b.provider.Name()),
		zap.Int("rows", snap.Len()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("answer_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if text == "" {
		return NoAnswer, nil
	}
	return text, nil
}

// BuildPrompt renders the preamble, the snapshot as indented JSON and the
// verbatim question.
func BuildPrompt(snap storage.Snapshot, question string) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	var sb strings.Builder
	sb.Grow(len(preamble) + len(data) + len(questionMarker) + len(question))
	sb.WriteString(preamble)
	sb.Write(data)
	sb.WriteString(questionMarker)
	sb.WriteString(question)
	return sb.String(), nil
}
