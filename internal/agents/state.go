package agents

import (
	"github.com/cloudwego/eino/schema"
)

// Phase is where a turn is in the reasoning loop.
type Phase string

const (
	PhaseAwaitingInput Phase = "awaiting_user_input"
	PhaseReasoning     Phase = "reasoning"
	PhaseToolCall      Phase = "tool_call"
	PhaseToolResult    Phase = "tool_result"
	PhaseFinalAnswer   Phase = "final_answer"
)

// Event is reported to an observer on every phase change.
type Event struct {
	Phase     Phase
	Iteration int
	Tool      string
	Content   string
}

// turnState is the working set of one Chat call.
type turnState struct {
	Messages         []*schema.Message
	MaxIterations    int
	CurrentIteration int
	Phase            Phase
	Last             *schema.Message
}

func newTurnState(system string, history []*schema.Message, maxIter int) *turnState {
	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, history...)
	return &turnState{
		Messages:      msgs,
		MaxIterations: maxIter,
		Phase:         PhaseAwaitingInput,
	}
}

func (s *turnState) exhausted() bool {
	return s.CurrentIteration >= s.MaxIterations
}
