// Package testutil provides deterministic test doubles for runtime
// dependencies.
package testutil

import (
	"fmt"
	"sync"
)

// StaticTokenGenerator generates the same process token every time.
//
// This enables deterministic test execution and golden trace comparison
// when a test registers exactly one process. Unlike instant.FixedGenerator
// it never exhausts.
//
// Thread-safety: StaticTokenGenerator is stateless and safe for
// concurrent use.
type StaticTokenGenerator struct {
	token string
}

// NewStaticTokenGenerator creates a generator that always returns token.
// If token is empty, Generate() returns "test-proc-default".
func NewStaticTokenGenerator(token string) *StaticTokenGenerator {
	if token == "" {
		token = "test-proc-default"
	}
	return &StaticTokenGenerator{token: token}
}

// Generate returns the fixed process token.
//
// Implements instant.TokenGenerator.
func (g *StaticTokenGenerator) Generate() string {
	return g.token
}

// SequenceTokenGenerator generates "p1", "p2", "p3", ... (with a
// configurable prefix) and never exhausts.
//
// Scenario tests use it when the number of registered processes is not
// known up front; re-running the same scenario with a fresh generator
// reproduces the same tokens.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceTokenGenerator creates a sequence generator.
// If prefix is empty, "p" is used.
func NewSequenceTokenGenerator(prefix string) *SequenceTokenGenerator {
	if prefix == "" {
		prefix = "p"
	}
	return &SequenceTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
//
// Implements instant.TokenGenerator.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset(), the next Generate()
// returns "<prefix>1" again.
func (g *SequenceTokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
