package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/models"
)

const (
	preferenceImportance     = 4
	recommendationImportance = 3
	insightImportance        = 2
)

// Repo is the durable table behind LongTerm.
type Repo interface {
	Add(ctx context.Context, m models.AgentMemory) (models.AgentMemory, error)
	List(ctx context.Context, userID, memType string, limit int) ([]models.AgentMemory, error)
}

// LongTerm holds a user's preferences, past recommendations and insights.
type LongTerm struct {
	repo Repo
}

func NewLongTerm(repo Repo) *LongTerm {
	return &LongTerm{repo: repo}
}

func (l *LongTerm) Add(ctx context.Context, userID, memType, content string, metadata map[string]any, importance int) (models.AgentMemory, error) {
	m, err := l.repo.Add(ctx, models.AgentMemory{
		UserID:     userID,
		Type:       memType,
		Content:    content,
		Metadata:   metadata,
		Importance: importance,
	})
	if err != nil {
		return m, fmt.Errorf("save %s memory: %w", memType, err)
	}
	return m, nil
}

// SavePreference stores "key: value" with {key: value} metadata.
func (l *LongTerm) SavePreference(ctx context.Context, userID, key string, value any) (models.AgentMemory, error) {
	return l.Add(ctx, userID, models.MemoryPreference, fmt.Sprintf("%s: %v", key, value),
		map[string]any{key: value}, preferenceImportance)
}

func (l *LongTerm) SaveRecommendation(ctx context.Context, userID, content string, metadata map[string]any) (models.AgentMemory, error) {
	return l.Add(ctx, userID, models.MemoryRecommendation, content, metadata, recommendationImportance)
}

// SaveInsight stores an insight; importance <= 0 means the default of 2.
func (l *LongTerm) SaveInsight(ctx context.Context, userID, content string, importance int) (models.AgentMemory, error) {
	if importance <= 0 {
		importance = insightImportance
	}
	return l.Add(ctx, userID, models.MemoryInsight, content, nil, importance)
}

// Preferences merges the user's top five preference memories. Memories
// without metadata contribute their content as a key set to true.
func (l *LongTerm) Preferences(ctx context.Context, userID string) (map[string]any, error) {
	mems, err := l.repo.List(ctx, userID, models.MemoryPreference, 5)
	if err != nil {
		return nil, err
	}
	prefs := map[string]any{}
	for _, m := range mems {
		if len(m.Metadata) == 0 {
			prefs[m.Content] = true
			continue
		}
		for k, v := range m.Metadata {
			prefs[k] = v
		}
	}
	return prefs, nil
}

func (l *LongTerm) RecentRecommendations(ctx context.Context, userID string, limit int) ([]string, error) {
	mems, err := l.repo.List(ctx, userID, models.MemoryRecommendation, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(mems))
	for i, m := range mems {
		out[i] = m.Content
	}
	return out, nil
}

// ContextForAgent renders preferences and the last three recommendation
// summaries for the system prompt. Empty when the user has neither.
func (l *LongTerm) ContextForAgent(ctx context.Context, userID string) string {
	var parts []string

	prefs, err := l.Preferences(ctx, userID)
	if err != nil {
		logx.WithContext(ctx).Errorf("memory: preferences user=%s err=%v", userID, err)
	}
	if len(prefs) > 0 {
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = fmt.Sprintf("%s: %v", k, prefs[k])
		}
		parts = append(parts, "【用户偏好】"+strings.Join(items, ", "))
	}

	recent, err := l.RecentRecommendations(ctx, userID, 3)
	if err != nil {
		logx.WithContext(ctx).Errorf("memory: recommendations user=%s err=%v", userID, err)
	}
	if len(recent) > 0 {
		summaries := make([]string, len(recent))
		for i, r := range recent {
			summaries[i] = Truncate(r, 50) + "..."
		}
		parts = append(parts, "【历史建议摘要】"+joinSemi(summaries))
	}
	return strings.Join(parts, "\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinSemi(items []string) string { return strings.Join(items, "; ") }
