// Package judge implements the plan phase's judge/improve loop: an
// LLM-as-judge pass against nine fixed quality criteria, and an improve
// pass that revises a failing plan, with at most three judge passes.
package judge

import (
	"context"
	"fmt"
	"strings"

	"basegraph.app/relay/internal/jsonextract"
)

const maxIterations = 3

// Criteria is the fixed set of nine quality dimensions every plan is judged
// against.
var Criteria = []string{
	"patterns",
	"error handling",
	"no hardcoded values",
	"function size",
	"comment intent",
	"type strictness",
	"API error boundaries",
	"security",
	"performance",
}

// CriterionResult is one criterion's judged outcome.
type CriterionResult struct {
	Criterion   string   `json:"criterion"`
	Passed      bool     `json:"passed"`
	Reasoning   string   `json:"reasoning"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Verdict is the judge pass's output.
type Verdict struct {
	Passed       bool               `json:"passed"`
	OverallScore int                `json:"overallScore"`
	Criteria     []CriterionResult  `json:"criteria"`
	Summary      string             `json:"summary"`
	Improvements []string           `json:"improvements"`
}

// ImproveResult is the improve pass's output.
type ImproveResult struct {
	ImprovedPlan   string   `json:"improvedPlan"`
	ChangesSummary []string `json:"changesSummary"`
}

// Invoke runs a single CLI prompt and returns its raw output, for wiring to
// cliinvoker.Invoker.Run. The judge loop is CLI-driven end to end; it never
// calls an LLM API directly.
type Invoke func(ctx context.Context, prompt string) (string, error)

// Outcome is what Run returns: the final plan text, whether it passed
// (possibly after exhausting iterations), and whether manual review should
// be flagged.
type Outcome struct {
	FinalPlan            string
	Passed               bool
	ManualReviewRequired bool
	Verdicts             []Verdict
}

// Run judges plan up to maxIterations times in total, running an improve
// pass between consecutive failing judge passes (so at most
// maxIterations-1 improve passes).
func Run(ctx context.Context, invoke Invoke, plan string) (Outcome, error) {
	current := plan
	var verdicts []Verdict

	for i := 0; i < maxIterations; i++ {
		verdict, err := judgeOnce(ctx, invoke, current)
		if err != nil {
			return Outcome{}, fmt.Errorf("judge pass %d: %w", i+1, err)
		}
		verdicts = append(verdicts, verdict)

		if verdict.Passed {
			return Outcome{FinalPlan: current, Passed: true, Verdicts: verdicts}, nil
		}

		if i == maxIterations-1 {
			break
		}

		improved, err := improveOnce(ctx, invoke, current, verdict)
		if err != nil {
			return Outcome{}, fmt.Errorf("improve pass %d: %w", i+1, err)
		}
		current = improved.ImprovedPlan
	}

	return Outcome{
		FinalPlan:            current,
		Passed:                false,
		ManualReviewRequired: true,
		Verdicts:             verdicts,
	}, nil
}

func judgeOnce(ctx context.Context, invoke Invoke, plan string) (Verdict, error) {
	prompt := buildJudgePrompt(plan)
	out, err := invoke(ctx, prompt)
	if err != nil {
		return Verdict{}, err
	}
	var v Verdict
	if err := jsonextract.Extract(out, &v); err != nil {
		return Verdict{}, fmt.Errorf("extracting judge verdict: %w", err)
	}
	return v, nil
}

func improveOnce(ctx context.Context, invoke Invoke, plan string, verdict Verdict) (ImproveResult, error) {
	prompt := buildImprovePrompt(plan, verdict)
	out, err := invoke(ctx, prompt)
	if err != nil {
		return ImproveResult{}, err
	}
	var r ImproveResult
	if err := jsonextract.Extract(out, &r); err != nil {
		return ImproveResult{}, fmt.Errorf("extracting improve result: %w", err)
	}
	return r, nil
}

func buildJudgePrompt(plan string) string {
	var b strings.Builder
	b.WriteString("Act as a judge. Evaluate the following plan against these criteria:\n")
	for _, c := range Criteria {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\nPlan:\n" + plan + "\n\n")
	b.WriteString("Respond with JSON: {passed, overallScore (0-100), criteria:[{criterion,passed,reasoning,suggestions?}], summary, improvements[]}.\n")
	return b.String()
}

func buildImprovePrompt(plan string, verdict Verdict) string {
	var b strings.Builder
	b.WriteString("The following plan failed judging. Revise it to address the failing criteria.\n\n")
	b.WriteString("Plan:\n" + plan + "\n\nFailing criteria:\n")
	for _, c := range verdict.Criteria {
		if !c.Passed {
			b.WriteString("- " + c.Criterion + ": " + c.Reasoning + "\n")
		}
	}
	b.WriteString("\nRespond with JSON: {improvedPlan, changesSummary[]}.\n")
	return b.String()
}
