package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/agents/memory"
	"github.com/dyike/cortexmarket/models"
)

// ErrNotConfigured is returned when no LLM credentials are set.
var ErrNotConfigured = errors.New("agent: LLM is not configured")

const (
	defaultMaxIterations = 5
	recommendationRunes  = 500
	emptyAnswer          = "抱歉，我无法生成回复。"
)

// adviceMarkers flag an answer worth keeping as a recommendation.
var adviceMarkers = []string{"推荐方向", "投资"}

// ToolExecutor is the tool surface the loop needs.
type ToolExecutor interface {
	Infos() []*schema.ToolInfo
	Execute(ctx context.Context, name, argsJSON string) string
}

type Options struct {
	MaxIterations int
	Temperature   float32
	MaxTokens     int
	// CallTimeout bounds each LLM call.
	CallTimeout time.Duration
	Observer    func(Event)
}

// InvestmentAgent answers investment questions with a bounded
// reason/act loop over the registered tools. One agent serves one
// (user, session) pair; turns are serialized.
type InvestmentAgent struct {
	userID    string
	sessionID string
	model     model.ToolCallingChatModel
	tools     ToolExecutor
	conv      *memory.Conversation
	longTerm  *memory.LongTerm
	opts      Options
	mu        sync.Mutex
}

// NewInvestmentAgent binds the tool schemas on cm. A nil cm builds an agent
// that answers every turn with a configuration hint.
func NewInvestmentAgent(userID, sessionID string, cm model.ToolCallingChatModel, tools ToolExecutor,
	conv *memory.Conversation, longTerm *memory.LongTerm, opts Options) (*InvestmentAgent, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	a := &InvestmentAgent{
		userID:    userID,
		sessionID: sessionID,
		tools:     tools,
		conv:      conv,
		longTerm:  longTerm,
		opts:      opts,
	}
	if cm != nil {
		bound, err := cm.WithTools(tools.Infos())
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		a.model = bound
	}
	return a, nil
}

func (a *InvestmentAgent) UserID() string    { return a.userID }
func (a *InvestmentAgent) SessionID() string { return a.sessionID }
func (a *InvestmentAgent) Configured() bool  { return a.model != nil }

func (a *InvestmentAgent) emit(e Event) {
	if a.opts.Observer != nil {
		a.opts.Observer(e)
	}
}

// Chat runs one user turn. The reply is always user-visible text; err is
// set when the LLM call failed and the reply reports it.
func (a *InvestmentAgent) Chat(ctx context.Context, userMessage string) (string, error) {
	if !a.Configured() {
		return "Agent 未配置，请设置 LLM API Key。", ErrNotConfigured
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.conv.Add(ctx, a.sessionID, string(schema.User), userMessage)
	history := a.conv.Messages(ctx, a.sessionID)
	if n := len(history); n == 0 || history[n-1].Role != schema.User || history[n-1].Content != userMessage {
		// cache down: the turn still carries the question
		history = append(history, schema.UserMessage(userMessage))
	}
	st := newTurnState(
		buildSystemPrompt(a.longTerm.ContextForAgent(ctx, a.userID)),
		history,
		a.opts.MaxIterations,
	)

	var (
		toolTurns []models.ConversationTurn
		answer    string
		llmErr    error
	)
	for !st.exhausted() {
		st.CurrentIteration++
		st.Phase = PhaseReasoning
		a.emit(Event{Phase: PhaseReasoning, Iteration: st.CurrentIteration})

		resp, err := a.generate(ctx, st.Messages)
		if err != nil {
			logx.WithContext(ctx).Errorf("agent: llm session=%s iteration=%d err=%v", a.sessionID, st.CurrentIteration, err)
			llmErr = err
			answer = "处理请求时发生错误: " + err.Error()
			break
		}
		st.Last = resp

		if len(resp.ToolCalls) == 0 {
			answer = resp.Content
			if answer == "" {
				answer = emptyAnswer
			}
			break
		}

		st.Messages = append(st.Messages, resp)
		for _, tc := range resp.ToolCalls {
			st.Phase = PhaseToolCall
			a.emit(Event{Phase: PhaseToolCall, Iteration: st.CurrentIteration, Tool: tc.Function.Name, Content: tc.Function.Arguments})
			out := a.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			st.Phase = PhaseToolResult
			a.emit(Event{Phase: PhaseToolResult, Iteration: st.CurrentIteration, Tool: tc.Function.Name, Content: out})

			st.Messages = append(st.Messages, schema.ToolMessage(out, tc.ID))
			toolTurns = append(toolTurns, models.ConversationTurn{Role: string(schema.Tool), Content: out, ToolName: tc.Function.Name})
		}
		if st.exhausted() {
			// out of iterations: the last output stands, even when empty
			answer = resp.Content
		}
	}

	st.Phase = PhaseFinalAnswer
	a.emit(Event{Phase: PhaseFinalAnswer, Iteration: st.CurrentIteration, Content: answer})

	a.conv.Append(ctx, a.sessionID, append(toolTurns, models.ConversationTurn{Role: string(schema.Assistant), Content: answer})...)
	if llmErr == nil && isAdvice(answer) {
		if _, err := a.longTerm.SaveRecommendation(ctx, a.userID, memory.Truncate(answer, recommendationRunes),
			map[string]any{"query": userMessage}); err != nil {
			logx.WithContext(ctx).Errorf("agent: save recommendation user=%s err=%v", a.userID, err)
		}
	}
	return answer, llmErr
}

func (a *InvestmentAgent) generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	if a.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()
	}
	var opts []model.Option
	if a.opts.Temperature > 0 {
		opts = append(opts, model.WithTemperature(a.opts.Temperature))
	}
	if a.opts.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(a.opts.MaxTokens))
	}
	return a.model.Generate(ctx, msgs, opts...)
}

// Advice asks for investment advice on topic, or on the market as a whole.
func (a *InvestmentAgent) Advice(ctx context.Context, topic string) (string, error) {
	return a.Chat(ctx, adviceQuery(strings.TrimSpace(topic)))
}

// ClearSession drops the short-term memory of this session.
func (a *InvestmentAgent) ClearSession(ctx context.Context) {
	a.conv.Clear(ctx, a.sessionID)
}

func (a *InvestmentAgent) History(ctx context.Context) []models.ConversationTurn {
	return a.conv.History(ctx, a.sessionID)
}

func isAdvice(answer string) bool {
	for _, m := range adviceMarkers {
		if strings.Contains(answer, m) {
			return true
		}
	}
	return false
}
