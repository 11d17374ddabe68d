// Package skill implements the Skill Runner: versioned step workflows
// with precondition/postcondition gates, string-interpolated templates,
// and rollback-on-failure.
package skill

import "github.com/requiem-run/requiem-core/pkg/tenant"

// StepKind tags a Step's variant.
type StepKind string

const (
	StepTool   StepKind = "tool"
	StepLlm    StepKind = "llm"
	StepAssert StepKind = "assert"
)

// Step is a tagged union over the three step kinds. Exactly the fields
// relevant to Kind are populated; this models a sealed sum type with a
// discriminator rather than three separate interfaces, matching the
// teacher's preference for explicit switch-based dispatch over open
// polymorphism.
type Step struct {
	Kind StepKind

	// Tool
	ToolName  string
	Input     interface{}
	OutputKey string

	// Llm
	Prompt string
	Model  string

	// Assert
	Predicate   string
	Description string
}

// SkillDefinition is a versioned, ordered workflow.
type SkillDefinition struct {
	Name          string
	Version       string
	Description   string
	RequiredTools []string
	Steps         []Step

	Precondition  func(ctx tenant.InvocationContext) bool
	Postcondition func(ctx tenant.InvocationContext, result interface{}) bool
	Rollback      func(ctx tenant.InvocationContext, completed []StepResult)
}

// StepResult is the per-step outcome recorded in Result.
type StepResult struct {
	Step      Step
	Output    interface{}
	LatencyMS int64
	IsSuccess bool
	Error     string
}

// Result is the final outcome of a skill run.
type Result struct {
	Steps        []StepResult
	FinalOutput  interface{}
	TotalLatency int64
	IsSuccess    bool
}

// ToolCaller is the collaborator a Tool step dispatches through; in
// practice this is toolreg.Gate.Call, bound by the wiring package. It
// is a function type so that pkg/skill does not import pkg/toolreg.
type ToolCaller func(name, version string, input interface{}, ctx tenant.InvocationContext) (interface{}, error)

// TextGenerator is the opaque LLM collaborator for Llm steps.
type TextGenerator func(prompt, model string) (string, error)
