package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"basegraph.app/relay/common/id"
	"basegraph.app/relay/internal/jsonextract"
	"basegraph.app/relay/internal/judge"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/promptbuilder"
)

// phaseAfter gives each phase's successor, empty for the terminal phase.
var phaseAfter = map[model.SpecPhase]model.SpecPhase{
	model.SpecPhaseConstitution:   model.SpecPhaseSpec,
	model.SpecPhaseSpec:           model.SpecPhaseClarifications,
	model.SpecPhaseClarifications: model.SpecPhasePlan,
	model.SpecPhasePlan:           model.SpecPhaseAnalysis,
	model.SpecPhaseAnalysis:       model.SpecPhaseTasks,
	model.SpecPhaseTasks:          "",
}

// workflowStageCode maps a (phase, suffix) pair onto the externally-owned
// feature_workflow_stages table's id space. The core only needs a stable,
// deterministic id per named stage; the table itself is owned outside this
// component.
var workflowStageCode = map[string]int64{
	"constitution_complete":   101,
	"spec_complete":           102,
	"clarifications_waiting":  103,
	"clarifications_complete": 104,
	"plan_complete":           105,
	"analysis_waiting":        106,
	"analysis_complete":       107,
	"tasks_complete":          108,
}

// SpecPipelineRunner executes exactly one phase of the six-phase state
// machine per job, merging its output into the feature's SpecOutput and,
// when eligible, auto-enqueuing the next phase.
type SpecPipelineRunner struct {
	deps Deps

	featureLocksMu sync.Mutex
	featureLocks   map[int64]*sync.Mutex
}

func NewSpecPipelineRunner(deps Deps) *SpecPipelineRunner {
	return &SpecPipelineRunner{
		deps:         deps,
		featureLocks: make(map[int64]*sync.Mutex),
	}
}

// lockFeature returns (and creates on first use) the advisory mutex
// serializing every spec job against a given feature, resolving the
// requirement that spec jobs for the same feature never run concurrently
// even though the scheduler may dispatch two at once.
func (r *SpecPipelineRunner) lockFeature(featureID int64) *sync.Mutex {
	r.featureLocksMu.Lock()
	defer r.featureLocksMu.Unlock()
	m, ok := r.featureLocks[featureID]
	if !ok {
		m = &sync.Mutex{}
		r.featureLocks[featureID] = m
	}
	return m
}

func (r *SpecPipelineRunner) Run(ctx context.Context, job model.Job) {
	if job.FeatureID == nil {
		r.fail(ctx, &job, "job has no feature_id", fmt.Errorf("spec jobs require feature_id"))
		return
	}

	mu := r.lockFeature(*job.FeatureID)
	mu.Lock()
	defer mu.Unlock()

	r.runLocked(ctx, job)
}

func (r *SpecPipelineRunner) runLocked(ctx context.Context, job model.Job) {
	stores := r.deps.Stores

	if job.SpecPhase == nil {
		r.fail(ctx, &job, "job has no spec_phase", fmt.Errorf("spec jobs require spec_phase"))
		return
	}
	phase := model.SpecPhase(*job.SpecPhase)

	feature, err := stores.Features().GetByID(ctx, *job.FeatureID)
	if err != nil {
		r.fail(ctx, &job, "feature lookup failed", err)
		return
	}

	client, err := stores.Clients().GetByID(ctx, feature.ClientID)
	if err != nil {
		r.fail(ctx, &job, "client lookup failed", err)
		return
	}

	var repo *model.Repository
	var worktree string
	if job.RepositoryID != nil {
		repo, err = stores.Repositories().GetByID(ctx, *job.RepositoryID)
		if err != nil {
			r.fail(ctx, &job, "repository lookup failed", err)
			return
		}
		if _, err := r.deps.Workspace.EnsureBareRepo(ctx, *repo); err != nil {
			r.fail(ctx, &job, "ensuring bare repo failed", err)
			return
		}
		worktree, err = r.deps.Workspace.CreateWorktree(ctx, *repo, job)
		if err != nil {
			r.fail(ctx, &job, "creating worktree failed", err)
			return
		}
		defer r.deps.Workspace.RemoveWorktree(context.Background(), *repo, worktree)
	}

	out := model.SpecOutput{}
	if feature.SpecOutput != nil {
		out = *feature.SpecOutput
	}

	promptCtx := r.buildContext(feature, client, repo, out)

	// Constitution short-circuits on a client that already has one stored,
	// as long as this is the feature's first constitution pass: a feature
	// revisiting the phase (already carries a constitution sub-document)
	// is an explicit regeneration request and always re-invokes the CLI.
	if phase == model.SpecPhaseConstitution && client.Constitution != nil && out.Constitution == nil {
		constitution := *client.Constitution
		out = out.RegeneratePhase(phase)
		out.Constitution = &constitution
		r.finish(ctx, &job, feature, out, phase)
		return
	}

	prompt, err := buildPhasePrompt(phase, promptCtx)
	if err != nil {
		r.fail(ctx, &job, "building phase prompt failed", err)
		return
	}

	output, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
	if err != nil {
		r.fail(ctx, &job, "CLI invocation failed", err)
		return
	}
	job.ExitCode = &exitCode
	if exitCode != 0 {
		recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "raw output: "+output)
		r.fail(ctx, &job, "non-zero exit", fmt.Errorf("CLI exited with status %d", exitCode))
		return
	}

	merged, err := mergePhaseOutput(out, phase, output)
	if err != nil {
		recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "raw output: "+output)
		r.fail(ctx, &job, "extracting phase output failed", err)
		return
	}
	out = merged

	if phase == model.SpecPhasePlan && out.Plan != nil {
		invoke := func(ctx context.Context, prompt string) (string, error) {
			text, code, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
			if err != nil {
				return "", err
			}
			if code != 0 {
				return "", fmt.Errorf("CLI exited with status %d during judge/improve", code)
			}
			return text, nil
		}
		outcome, err := judge.Run(ctx, invoke, *out.Plan)
		if err != nil {
			r.fail(ctx, &job, "judge/improve loop failed", err)
			return
		}
		out.Plan = &outcome.FinalPlan
		if outcome.ManualReviewRequired {
			recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "manual review required: plan did not pass judging after 3 iterations")
		}
	}

	r.finish(ctx, &job, feature, out, phase)
}

// finish merges out into the feature, updates its workflow stage, computes
// the auto-progression action, and marks the current phase job completed.
func (r *SpecPipelineRunner) finish(ctx context.Context, job *model.Job, feature *model.Feature, out model.SpecOutput, phase model.SpecPhase) {
	stores := r.deps.Stores

	if err := stores.Features().UpdateSpecOutput(ctx, feature.ID, &out); err != nil {
		r.fail(ctx, job, "persisting spec output failed", err)
		return
	}

	action := computeAutoProgression(out, phase)
	stageName := fmt.Sprintf("%s_%s", phase, stageSuffix(action))
	if stageID, ok := workflowStageCode[stageName]; ok {
		if err := stores.Features().UpdateWorkflowStage(ctx, feature.ID, stageID); err != nil {
			slog.ErrorContext(ctx, "updating workflow stage", "feature_id", feature.ID, "error", err)
		}
	}

	if action == "auto_progress" {
		next := phaseAfter[phase]
		if next != "" {
			if err := r.enqueueNextPhase(ctx, *job, feature.ID, next); err != nil {
				slog.ErrorContext(ctx, "enqueuing next phase job", "feature_id", feature.ID, "error", err)
			} else if r.deps.Wake != nil {
				r.deps.Wake.Publish(ctx)
			}
		}
	}

	if err := completeJob(ctx, stores, job, action); err != nil {
		slog.ErrorContext(ctx, "persisting completed spec job", "job_id", job.ID, "error", err)
	}
}

func stageSuffix(action string) string {
	switch action {
	case "wait_human":
		return "waiting"
	case "analyze_failed":
		return "waiting"
	default:
		return "complete"
	}
}

// computeAutoProgression implements the action table: a clarify phase with
// any unanswered clarification waits for a human, a failed analysis halts,
// anything else with a successor phase auto-progresses, and the tasks phase
// (the pipeline's terminus) always completes the pipeline.
func computeAutoProgression(out model.SpecOutput, phase model.SpecPhase) string {
	if phase == model.SpecPhaseClarifications {
		for _, c := range out.Clarifications {
			if c.Response == nil {
				return "wait_human"
			}
		}
	}
	if phase == model.SpecPhaseAnalysis && out.Analysis != nil && !out.Analysis.Passed {
		return "analyze_failed"
	}
	if phaseAfter[phase] != "" {
		return "auto_progress"
	}
	return "spec_complete"
}

func (r *SpecPipelineRunner) enqueueNextPhase(ctx context.Context, prev model.Job, featureID int64, next model.SpecPhase) error {
	return EnqueueSpecJob(ctx, r.deps.Stores, prev, featureID, next)
}

// EnqueueSpecJob creates a new queued spec job for featureID at phase next,
// carrying prev's client/repository/prompt/branch. Exported so the ingress
// handlers can advance the pipeline directly (e.g. once every clarification
// has a response) without re-invoking the CLI through a runner.
func EnqueueSpecJob(ctx context.Context, stores Stores, prev model.Job, featureID int64, next model.SpecPhase) error {
	nextPhase := string(next)
	job := &model.Job{
		ID:           id.New(),
		ClientID:     prev.ClientID,
		FeatureID:    &featureID,
		RepositoryID: prev.RepositoryID,
		JobType:      model.JobTypeSpec,
		Status:       model.JobStatusQueued,
		Prompt:       prev.Prompt,
		BranchName:   prev.BranchName,
		SpecPhase:    &nextPhase,
	}
	return stores.Jobs().Create(ctx, job)
}

// PhaseAfter reports the phase that follows phase in the pipeline's forward
// order, or "" if phase is the terminal tasks phase.
func PhaseAfter(phase model.SpecPhase) model.SpecPhase {
	return phaseAfter[phase]
}

// AllClarificationsAnswered reports whether every clarification in out has a
// recorded response.
func AllClarificationsAnswered(out model.SpecOutput) bool {
	for _, c := range out.Clarifications {
		if c.Response == nil {
			return false
		}
	}
	return true
}

func (r *SpecPipelineRunner) buildContext(feature *model.Feature, client *model.Client, repo *model.Repository, out model.SpecOutput) promptbuilder.Context {
	c := promptbuilder.Context{
		FeatureTitle:  feature.Title,
		FeatureTypeID: feature.FeatureTypeID,
		ClientName:    client.Name,
	}
	if feature.FunctionalityNotes != nil {
		c.FeatureDescription = *feature.FunctionalityNotes
	}
	if repo != nil {
		c.RepoName = repo.RepoName
	}
	if out.Constitution != nil {
		c.ExistingConstitution = *out.Constitution
	}
	if out.Spec != nil {
		c.ExistingSpec = out.Spec.Overview
	}
	if out.Plan != nil {
		c.ExistingPlan = *out.Plan
	}
	for _, cl := range out.Clarifications {
		if cl.Response != nil {
			c.ClarificationAnswers = append(c.ClarificationAnswers, promptbuilder.ClarificationAnswer{
				Question: cl.Question,
				Response: *cl.Response,
			})
		}
	}
	return c
}

func buildPhasePrompt(phase model.SpecPhase, c promptbuilder.Context) (string, error) {
	switch phase {
	case model.SpecPhaseConstitution:
		return promptbuilder.Constitution(c), nil
	case model.SpecPhaseSpec:
		return promptbuilder.Specify(c), nil
	case model.SpecPhaseClarifications:
		return promptbuilder.Clarify(c), nil
	case model.SpecPhasePlan:
		return promptbuilder.Plan(c), nil
	case model.SpecPhaseAnalysis:
		return promptbuilder.Analyze(c), nil
	case model.SpecPhaseTasks:
		return promptbuilder.Tasks(c), nil
	default:
		return "", fmt.Errorf("unknown spec phase %q", phase)
	}
}

// mergePhaseOutput extracts the phase's JSON document from raw CLI output
// and overwrites only that phase's key on out, preserving every other
// phase's prior sub-document.
func mergePhaseOutput(out model.SpecOutput, phase model.SpecPhase, rawOutput string) (model.SpecOutput, error) {
	out = out.RegeneratePhase(phase)

	switch phase {
	case model.SpecPhaseConstitution:
		var doc struct {
			Constitution string   `json:"constitution"`
			TechStack    string   `json:"techStack"`
			KeyPatterns  []string `json:"keyPatterns"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		if doc.Constitution == "" {
			return out, fmt.Errorf("constitution phase output missing \"constitution\"")
		}
		out.Constitution = &doc.Constitution

	case model.SpecPhaseSpec:
		var doc struct {
			Spec model.SpecDocument `json:"spec"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		if doc.Spec.Overview == "" {
			return out, fmt.Errorf("specify phase output missing \"spec.overview\"")
		}
		out.Spec = &doc.Spec

	case model.SpecPhaseClarifications:
		var doc struct {
			Clarifications []model.Clarification `json:"clarifications"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		out.Clarifications = doc.Clarifications

	case model.SpecPhasePlan:
		var doc struct {
			Plan interface{} `json:"plan"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		if doc.Plan == nil {
			return out, fmt.Errorf("plan phase output missing \"plan\"")
		}
		planBytes, err := json.Marshal(doc.Plan)
		if err != nil {
			return out, err
		}
		planJSON := string(planBytes)
		out.Plan = &planJSON

	case model.SpecPhaseAnalysis:
		var doc struct {
			Analysis model.Analysis `json:"analysis"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		out.Analysis = &doc.Analysis

	case model.SpecPhaseTasks:
		var doc struct {
			Tasks []model.Task `json:"tasks"`
		}
		if err := jsonextract.Extract(rawOutput, &doc); err != nil {
			return out, err
		}
		if len(doc.Tasks) == 0 {
			return out, fmt.Errorf("tasks phase output missing \"tasks\"")
		}
		out.Tasks = doc.Tasks

	default:
		return out, fmt.Errorf("unknown spec phase %q", phase)
	}

	return out, nil
}

func (r *SpecPipelineRunner) fail(ctx context.Context, job *model.Job, reason string, err error) {
	slog.ErrorContext(ctx, "spec phase job failed", "job_id", job.ID, "reason", reason, "error", err)
	recordMessage(ctx, r.deps.Stores, job.ID, model.JobMessageSystem, reason+": "+err.Error())
	if ferr := failJob(ctx, r.deps.Stores, job, reason, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed spec job", "job_id", job.ID, "error", ferr)
	}
}
