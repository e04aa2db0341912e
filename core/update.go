package core

// RunUpdate is emitted while a pipeline executes. The set of variants is closed
// through the unexported isRunUpdate marker, so consumers can switch over the
// concrete types below.
type RunUpdate interface{ isRunUpdate() }

// StepStarted marks the beginning of an executor's activity.
type StepStarted struct {
	ExecutorID string
}

// ToolCall reports a tool invocation made by the active capability.
type ToolCall struct {
	ExecutorID string
	CallID     string
	ToolName   string
	Arguments  string
}

// ToolResult reports the result of a previously announced ToolCall.
type ToolResult struct {
	ExecutorID string
	CallID     string
	ToolName   string
	Result     string
}

// TextFragment is a piece of assistant text streamed by the active capability.
type TextFragment struct {
	ExecutorID string
	Text       string
}

// StepCompleted closes an executor's activity. FinalText is the text relayed
// to the next step; Result is the finalized step, identical to the one
// returned by a batch run.
type StepCompleted struct {
	ExecutorID string
	FinalText  string
	Result     StepResult
}

// PipelineOutput carries the overall final message of a run, nil when no
// step produced one.
type PipelineOutput struct {
	FinalText *string
}

func (StepStarted) isRunUpdate()    {}
func (ToolCall) isRunUpdate()       {}
func (ToolResult) isRunUpdate()     {}
func (TextFragment) isRunUpdate()   {}
func (StepCompleted) isRunUpdate()  {}
func (PipelineOutput) isRunUpdate() {}
