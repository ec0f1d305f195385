package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/collection"
)

var ErrSessionOwner = errors.New("agent: session belongs to another user")

// Factory builds the agent of a new session.
type Factory func(ctx context.Context, userID, sessionID string) (*InvestmentAgent, error)

// Registry keeps live agents keyed by session id. It holds at most limit
// sessions, evicting the least recently used, and drops sessions idle for
// longer than idle.
type Registry struct {
	cache   *collection.Cache
	factory Factory
}

func NewRegistry(limit int, idle time.Duration, factory Factory) (*Registry, error) {
	if limit <= 0 {
		limit = 256
	}
	if idle <= 0 {
		idle = time.Hour
	}
	c, err := collection.NewCache(idle, collection.WithLimit(limit), collection.WithName("agent-sessions"))
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &Registry{cache: c, factory: factory}, nil
}

// Get returns the agent of sessionID, creating it on first use. An empty
// sessionID starts a new session with a generated id.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) (*InvestmentAgent, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	v, err := r.cache.Take(sessionID, func() (any, error) {
		return r.factory(ctx, userID, sessionID)
	})
	if err != nil {
		return nil, err
	}
	agent := v.(*InvestmentAgent)
	if agent.UserID() != userID {
		return nil, fmt.Errorf("%w: %s", ErrSessionOwner, sessionID)
	}
	// touch: idle expiry restarts on every use
	r.cache.Set(sessionID, agent)
	return agent, nil
}

// Drop forgets a session; its conversation stays in the cache until TTL.
func (r *Registry) Drop(sessionID string) {
	r.cache.Del(sessionID)
}
