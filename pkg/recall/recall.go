// Package recall answers time-scoped memory searches. Expressions such as
// "yesterday" are resolved in the user's own timezone and applied as a
// half-open [start, end) filter on memory creation time.
package recall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/window"
)

// Query is a memory search for one user.
type Query struct {
	UserID int64

	// Text filters memories by case-insensitive substring.
	Text string

	// Expression is an optional window expression in the user's calendar.
	Expression string

	Limit int
}

// Result holds the matching memories, newest first.
type Result struct {
	Memories []*storage.Memory `json:"memories"`
	Timezone string            `json:"timezone"`

	// Window is set when the query carried an expression.
	Window *window.Window `json:"window,omitempty"`
}

// Config holds the searcher's collaborators.
type Config struct {
	Users    storage.UserStore
	Memories storage.MemoryStore

	// Now defaults to time.Now.
	Now func() time.Time
}

// Searcher runs memory searches.
type Searcher struct {
	users    storage.UserStore
	memories storage.MemoryStore
	resolver *window.Resolver
}

// NewSearcher creates a searcher.
func NewSearcher(cfg Config) *Searcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Searcher{
		users:    cfg.Users,
		memories: cfg.Memories,
		resolver: &window.Resolver{Now: now},
	}
}

// Search returns the user's memories matching q. An unparseable expression
// fails with window.ErrInvalidTimeExpression instead of widening the search.
func (s *Searcher) Search(ctx context.Context, q Query) (*Result, error) {
	user, err := s.users.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user %d: %w", q.UserID, err)
	}

	loc, _ := window.LoadLocation(user.Timezone)
	result := &Result{Timezone: loc.String()}
	mq := storage.MemoryQuery{
		UserID: user.ID,
		Text:   strings.TrimSpace(q.Text),
		Limit:  q.Limit,
	}

	if strings.TrimSpace(q.Expression) != "" {
		w, err := s.resolver.Resolve(user.Timezone, q.Expression)
		if err != nil {
			return nil, err
		}
		mq.Start = w.Start
		mq.End = w.End
		result.Window = &w
	}

	result.Memories, err = s.memories.SearchMemories(ctx, mq)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	if result.Memories == nil {
		result.Memories = []*storage.Memory{}
	}
	return result, nil
}
