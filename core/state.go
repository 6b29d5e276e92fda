package core

// State is the conversation value threaded through every step. It is treated
// as immutable: Append and With return a new State and never modify the
// receiver's backing storage, so a step can hand out its input without fear of
// later steps rewriting it.
//
// Contract:
//   - Messages are append-only and chronological
//   - The last message determines routing
//   - Values carries auxiliary fields (template variables, tool inputs)
type State struct {
	Messages []Message
	Values   map[string]any
}

// NewState returns an empty state.
func NewState() State {
	return State{Messages: []Message{}, Values: map[string]any{}}
}

// Len returns the number of messages.
func (s State) Len() int { return len(s.Messages) }

// Append returns a new State with msgs added to the end of the history.
func (s State) Append(msgs ...Message) State {
	out := make([]Message, 0, len(s.Messages)+len(msgs))
	out = append(out, s.Messages...)

	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}

	return State{Messages: out, Values: s.Values}
}

// With returns a new State whose Values include key=value.
func (s State) With(key string, value any) State {
	values := make(map[string]any, len(s.Values)+1)
	for k, v := range s.Values {
		values[k] = v
	}

	values[key] = value

	return State{Messages: s.Messages, Values: values}
}

// Value returns the auxiliary value stored under key.
func (s State) Value(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Last returns the latest message or nil for an empty history.
func (s State) Last() Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the latest assistant turn and its index.
func (s State) LastAssistant() (AssistantMessage, int, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if am, ok := s.Messages[i].(AssistantMessage); ok {
			return am, i, true
		}
	}

	return AssistantMessage{}, -1, false
}

// UnpairedToolCalls returns the calls of the latest assistant turn that have
// no ToolResultMessage yet, in request order.
func (s State) UnpairedToolCalls() []ToolCall {
	am, idx, ok := s.LastAssistant()
	if !ok || !am.HasToolCalls() {
		return nil
	}

	answered := make(map[string]bool, len(am.ToolCalls))

	for _, m := range s.Messages[idx+1:] {
		if tr, ok := m.(ToolResultMessage); ok {
			answered[tr.ToolCallID] = true
		}
	}

	var pending []ToolCall

	for _, c := range am.ToolCalls {
		if !answered[c.ID] {
			pending = append(pending, c)
		}
	}

	return pending
}

// Clone returns a deep copy of the message slice and a shallow copy of Values.
func (s State) Clone() State {
	out := State{Messages: make([]Message, len(s.Messages)), Values: make(map[string]any, len(s.Values))}
	for i, m := range s.Messages {
		out.Messages[i] = cloneMessage(m)
	}

	for k, v := range s.Values {
		out.Values[k] = v
	}

	return out
}
