package core

// ToolCallRecord is one tool invocation observed during a step. Result stays
// nil until the matching tool result arrives.
type ToolCallRecord struct {
	CallID    string  `json:"-"`
	ToolName  string  `json:"toolName"`
	Arguments string  `json:"arguments"`
	Result    *string `json:"result"`
}

// Resolved reports whether a result was attached to the record.
func (r ToolCallRecord) Resolved() bool { return r.Result != nil }

// StepResult aggregates one executor's activity.
type StepResult struct {
	AgentName    string           `json:"agentName"`
	ToolCalls    []ToolCallRecord `json:"toolCalls"`
	TextOutput   string           `json:"textOutput"`
	FinalMessage *string          `json:"finalMessage"`
}

// Clone returns a deep copy so snapshots cannot be mutated through aliases.
func (s StepResult) Clone() StepResult {
	out := s
	out.ToolCalls = make([]ToolCallRecord, len(s.ToolCalls))
	for i, tc := range s.ToolCalls {
		if tc.Result != nil {
			r := *tc.Result
			tc.Result = &r
		}
		out.ToolCalls[i] = tc
	}
	if s.FinalMessage != nil {
		m := *s.FinalMessage
		out.FinalMessage = &m
	}
	return out
}

// WorkflowResponse is the batch result of a pipeline run.
type WorkflowResponse struct {
	AgentSteps   []StepResult `json:"agentSteps"`
	FinalMessage *string      `json:"finalMessage"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// MatchToolResult finds the record a tool result belongs to: the unresolved
// call with the same call id, else the last unresolved call with the same
// tool name, else (for results without a name) the last unresolved call.
// A result carrying a call id never falls back to a record with a different
// call id. It returns -1 when nothing matches.
func MatchToolResult(records []ToolCallRecord, callID, toolName string) int {
	if callID != "" {
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].CallID == callID && !records[i].Resolved() {
				return i
			}
		}
	}

	open := func(r ToolCallRecord) bool {
		return !r.Resolved() && (callID == "" || r.CallID == "")
	}
	for i := len(records) - 1; i >= 0; i-- {
		if open(records[i]) && (toolName == "" || records[i].ToolName == toolName) {
			return i
		}
	}
	return -1
}
