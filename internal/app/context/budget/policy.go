// Package budget keeps the context handed to a model within a configured
// size. It picks the cheapest sufficient strategy from a fixed ladder:
// pass-through, truncation, single-pass summarization and chunked
// summarization. Compression is best effort; no method here returns an error
// for a failed summarization.
package budget

import (
	"errors"
	"fmt"
)

// CompressionPolicy bounds one gateway's context. It is configuration, never
// mutated after the Manager is built.
type CompressionPolicy struct {
	// MaxTokens is the estimated size above which action is taken.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// TargetTokens is the size summaries aim for.
	TargetTokens int `yaml:"target_tokens" json:"target_tokens"`
	// MaxMessages is the hard cap on raw message count.
	MaxMessages int `yaml:"max_messages" json:"max_messages"`
	// EnableChunking allows chunked summarization for very large content.
	EnableChunking bool `yaml:"enable_chunking" json:"enable_chunking"`
	// MaxChunkTokens sizes each chunk; chunks hold MaxChunkTokens times the
	// estimator's characters-per-token.
	MaxChunkTokens int `yaml:"max_chunk_tokens" json:"max_chunk_tokens"`
}

// DefaultPolicy returns the policy used when configuration leaves the
// compression section empty.
func DefaultPolicy() CompressionPolicy {
	return CompressionPolicy{
		MaxTokens:      8000,
		TargetTokens:   2000,
		MaxMessages:    40,
		EnableChunking: true,
		MaxChunkTokens: 4000,
	}
}

// ErrInvalidPolicy is wrapped by every Validate failure.
var ErrInvalidPolicy = errors.New("invalid compression policy")

// Validate checks the policy invariants.
func (p CompressionPolicy) Validate() error {
	switch {
	case p.MaxTokens <= 0:
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidPolicy, p.MaxTokens)
	case p.TargetTokens <= 0 || p.TargetTokens > p.MaxTokens:
		return fmt.Errorf("%w: target_tokens must be in (0, max_tokens], got %d", ErrInvalidPolicy, p.TargetTokens)
	case p.MaxMessages < 1:
		return fmt.Errorf("%w: max_messages must be at least 1, got %d", ErrInvalidPolicy, p.MaxMessages)
	case p.EnableChunking && p.MaxChunkTokens <= 0:
		return fmt.Errorf("%w: max_chunk_tokens must be positive when chunking is enabled", ErrInvalidPolicy)
	}
	return nil
}
