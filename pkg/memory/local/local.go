// Package local provides an in-process implementation of memory.Inferer.
//
// The memory text is the message text itself, annotated with the number of
// attached media items, and the reply acknowledges what was remembered. It
// needs no external service, which makes it the default for local
// development and tests.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Config holds configuration for the local inferer.
type Config struct {
	// Enabled controls whether the inferer produces memories. When false,
	// Infer returns memory.ErrNotConfigured.
	Enabled bool
}

// Inferer implements memory.Inferer using in-process data structures.
type Inferer struct {
	config Config

	mu sync.Mutex

	// calls counts Infer invocations per user.
	calls map[int64]int
}

// NewInferer creates a local inferer.
func NewInferer(config Config) *Inferer {
	return &Inferer{
		config: config,
		calls:  make(map[int64]int),
	}
}

// Infer turns the message text into a memory.
func (i *Inferer) Infer(_ context.Context, req memory.Request) (*memory.Inference, error) {
	if !i.config.Enabled {
		return nil, memory.ErrNotConfigured
	}

	i.mu.Lock()
	i.calls[req.UserID]++
	i.mu.Unlock()

	text := strings.TrimSpace(req.Text)
	if n := len(req.MediaContext); n > 0 {
		if text == "" {
			text = fmt.Sprintf("[%d media]", n)
		} else {
			text = fmt.Sprintf("%s [%d media]", text, n)
		}
	}
	if text == "" {
		text = "(empty message)"
	}

	sources := make([]string, 0, len(req.MediaContext))
	for _, m := range req.MediaContext {
		if m.URL != "" {
			sources = append(sources, m.URL)
		}
	}

	return &memory.Inference{
		Text:       text,
		ExternalID: uuid.NewString(),
		Response:   "Got it, I'll remember: " + text,
		Sources:    sources,
	}, nil
}

// Calls returns how many times Infer ran for a user.
func (i *Inferer) Calls(userID int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[userID]
}

// Close is a no-op for the local inferer.
func (i *Inferer) Close() error {
	return nil
}

var _ memory.Inferer = (*Inferer)(nil)
