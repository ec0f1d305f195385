package memory

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortexmarket/internal/cache"
	"github.com/dyike/cortexmarket/models"
)

const (
	DefaultMaxMessages     = 20
	DefaultConversationTTL = time.Hour
)

// Conversation is the short-term memory of chat sessions, kept in the cache
// under agent:conversation:{session}. Only the newest messages are kept.
type Conversation struct {
	cache       *cache.Cache
	maxMessages int
	ttl         time.Duration
	now         func() time.Time
}

func NewConversation(c *cache.Cache, maxMessages int, ttl time.Duration) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &Conversation{cache: c, maxMessages: maxMessages, ttl: ttl, now: time.Now}
}

func (c *Conversation) key(session string) string {
	return cache.Key("agent", "conversation", session)
}

// Append adds turns to a session and refreshes its TTL. A cache outage
// loses the turn; the chat goes on.
func (c *Conversation) Append(ctx context.Context, session string, turns ...models.ConversationTurn) {
	history := c.History(ctx, session)
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = c.now()
		}
		history = append(history, t)
	}
	if len(history) > c.maxMessages {
		history = history[len(history)-c.maxMessages:]
	}
	c.cache.Set(ctx, c.key(session), history, c.ttl)
}

func (c *Conversation) Add(ctx context.Context, session, role, content string) {
	c.Append(ctx, session, models.ConversationTurn{Role: role, Content: content})
}

func (c *Conversation) History(ctx context.Context, session string) []models.ConversationTurn {
	var history []models.ConversationTurn
	c.cache.Get(ctx, c.key(session), &history)
	return history
}

// Messages is the LLM view of a session: user, assistant and system turns
// with content only.
func (c *Conversation) Messages(ctx context.Context, session string) []*schema.Message {
	var out []*schema.Message
	for _, t := range c.History(ctx, session) {
		switch schema.RoleType(t.Role) {
		case schema.User:
			out = append(out, schema.UserMessage(t.Content))
		case schema.Assistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		case schema.System:
			out = append(out, schema.SystemMessage(t.Content))
		}
	}
	return out
}

func (c *Conversation) Clear(ctx context.Context, session string) {
	c.cache.Delete(ctx, c.key(session))
}

// Summary lists the last three user queries of a session.
func (c *Conversation) Summary(ctx context.Context, session string) string {
	var queries []string
	for _, t := range c.History(ctx, session) {
		if t.Role == string(schema.User) {
			queries = append(queries, t.Content)
		}
	}
	if len(queries) == 0 {
		return ""
	}
	if len(queries) > 3 {
		queries = queries[len(queries)-3:]
	}
	return "用户查询: " + joinSemi(queries)
}
