package skill

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/tenant"
)

// Runner executes SkillDefinitions against injected tool and text
// collaborators, maintaining the named-output bag and rollback discipline
// described on SkillDefinition.
type Runner struct {
	CallTool     ToolCaller
	GenerateText TextGenerator
	Clock        clock.Clock

	celEnv   *cel.Env
	prgCache sync.Map
}

// NewRunner builds a Runner with its own CEL environment for Assert steps.
// The environment exposes the step bag as "bag" and the prior step's
// output as "output", matching the predicate's (bag, lastOutput) contract.
func NewRunner(callTool ToolCaller, generateText TextGenerator, c clock.Clock) (*Runner, error) {
	env, err := cel.NewEnv(
		cel.Variable("bag", cel.DynType),
		cel.Variable("output", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("skill: build cel environment: %w", err)
	}
	return &Runner{CallTool: callTool, GenerateText: generateText, Clock: c, celEnv: env}, nil
}

// Run executes def's steps in order under ctx, with arg seeded into the
// bag as "initial".
func (r *Runner) Run(def *SkillDefinition, ctx tenant.InvocationContext, arg interface{}) (*Result, error) {
	now := r.Clock.NowISO()

	if def.Precondition != nil && !def.Precondition(ctx) {
		return nil, errs.New(errs.KindSkillStepFailed, "Skill precondition failed", errs.SeverityError, now)
	}

	bag := map[string]interface{}{"initial": arg}
	var stepResults []StepResult
	lastOutput := arg
	runStart := r.Clock.Now()

	fail := func(stepErr error) (*Result, error) {
		completed := successfulSteps(stepResults)
		if hasCommittedToolStep(completed) && def.Rollback != nil {
			runRollback(def.Rollback, ctx, completed)
		}
		result := &Result{
			Steps:        stepResults,
			FinalOutput:  nil,
			TotalLatency: r.Clock.Elapsed(runStart).Milliseconds(),
			IsSuccess:    false,
		}
		return result, stepErr
	}

	for _, step := range def.Steps {
		stepStart := r.Clock.Now()
		output, err := r.runStep(step, bag, ctx, lastOutput)
		latencyMs := r.Clock.Elapsed(stepStart).Milliseconds()

		sr := StepResult{Step: step, Output: output, LatencyMS: latencyMs, IsSuccess: err == nil}
		if err != nil {
			sr.Error = err.Error()
			stepResults = append(stepResults, sr)
			return fail(err)
		}
		stepResults = append(stepResults, sr)

		key := step.OutputKey
		if key == "" {
			key = step.ToolName
		}
		if key != "" {
			bag[key] = output
		}
		lastOutput = output
	}

	if def.Postcondition != nil && !def.Postcondition(ctx, lastOutput) {
		return fail(errs.New(errs.KindSkillStepFailed, "Skill postcondition failed", errs.SeverityError, r.Clock.NowISO()))
	}

	return &Result{
		Steps:        stepResults,
		FinalOutput:  lastOutput,
		TotalLatency: r.Clock.Elapsed(runStart).Milliseconds(),
		IsSuccess:    true,
	}, nil
}

func (r *Runner) runStep(step Step, bag map[string]interface{}, ctx tenant.InvocationContext, lastOutput interface{}) (interface{}, error) {
	switch step.Kind {
	case StepTool:
		return r.runToolStep(step, bag, ctx)
	case StepLlm:
		return r.runLlmStep(step, bag)
	case StepAssert:
		return r.runAssertStep(step, bag, lastOutput)
	default:
		return nil, errs.New(errs.KindSkillStepFailed, fmt.Sprintf("unknown step kind %q", step.Kind), errs.SeverityError, r.Clock.NowISO())
	}
}

func (r *Runner) runToolStep(step Step, bag map[string]interface{}, ctx tenant.InvocationContext) (interface{}, error) {
	if r.CallTool == nil {
		return nil, errs.New(errs.KindInternalError, "skill runner has no tool caller configured", errs.SeverityCritical, r.Clock.NowISO())
	}
	resolvedInput := resolveTemplateValue(step.Input, bag)
	return r.CallTool(step.ToolName, "", resolvedInput, ctx.WithIncrementedDepth())
}

func (r *Runner) runLlmStep(step Step, bag map[string]interface{}) (interface{}, error) {
	if r.GenerateText == nil {
		return nil, errs.New(errs.KindInternalError, "skill runner has no text generator configured", errs.SeverityCritical, r.Clock.NowISO())
	}
	prompt := resolveTemplate(step.Prompt, bag)
	text, err := r.GenerateText(prompt, step.Model)
	if err != nil {
		if env, ok := err.(*errs.Envelope); ok && env.Code == errs.KindProviderNotConfigured {
			return map[string]interface{}{
				"type":    "stub",
				"message": env.Message,
				"prompt":  prompt,
			}, nil
		}
		return nil, err
	}
	return text, nil
}

func (r *Runner) runAssertStep(step Step, bag map[string]interface{}, lastOutput interface{}) (interface{}, error) {
	ok, err := r.evalPredicate(step.Predicate, bag, lastOutput)
	if err != nil {
		return nil, errs.New(errs.KindSkillStepFailed, fmt.Sprintf("assertion %q failed to evaluate: %v", step.Description, err), errs.SeverityError, r.Clock.NowISO())
	}
	if !ok {
		return nil, errs.New(errs.KindSkillStepFailed, step.Description, errs.SeverityError, r.Clock.NowISO())
	}
	return true, nil
}

func (r *Runner) evalPredicate(expr string, bag map[string]interface{}, lastOutput interface{}) (bool, error) {
	prg, err := r.compilePredicate(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]interface{}{"bag": bag, "output": lastOutput})
	if err != nil {
		return false, err
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("skill: predicate %q did not evaluate to a boolean", expr)
	}
	return result, nil
}

func (r *Runner) compilePredicate(expr string) (cel.Program, error) {
	if cached, ok := r.prgCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := r.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("skill: compile predicate %q: %w", expr, issues.Err())
	}
	prg, err := r.celEnv.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("skill: build program for %q: %w", expr, err)
	}

	r.prgCache.Store(expr, prg)
	return prg, nil
}

func successfulSteps(results []StepResult) []StepResult {
	out := make([]StepResult, 0, len(results))
	for _, sr := range results {
		if sr.IsSuccess {
			out = append(out, sr)
		}
	}
	return out
}

func hasCommittedToolStep(results []StepResult) bool {
	for _, sr := range results {
		if sr.Step.Kind == StepTool && sr.IsSuccess {
			return true
		}
	}
	return false
}

func runRollback(rollback func(tenant.InvocationContext, []StepResult), ctx tenant.InvocationContext, completed []StepResult) {
	defer func() {
		_ = recover()
	}()
	reversed := make([]StepResult, len(completed))
	for i, sr := range completed {
		reversed[len(completed)-1-i] = sr
	}
	rollback(ctx, reversed)
}
