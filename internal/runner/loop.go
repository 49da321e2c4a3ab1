package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"basegraph.app/relay/internal/jsonextract"
	"basegraph.app/relay/internal/model"
)

const (
	defaultPromiseToken = "<promise>COMPLETE</promise>"
	progressFileName    = ".ralph-progress.md"
)

var taskCompleteRe = regexp.MustCompile(`<task-complete>(\d+)</task-complete>`)

// LoopRunner drives the CLI over repeated iterations inside one worktree,
// either in promise-token mode (job_type=ralph, prd_mode=false) or, when the
// job's spec_output carries specMode=true, in per-task completion mode over
// a completed tasks-phase task graph.
type LoopRunner struct {
	deps Deps
}

func NewLoopRunner(deps Deps) *LoopRunner {
	return &LoopRunner{deps: deps}
}

func (r *LoopRunner) Run(ctx context.Context, job model.Job) {
	stores := r.deps.Stores

	repo, err := r.repositoryFor(ctx, job)
	if err != nil {
		r.fail(ctx, &job, "repository lookup failed", err)
		return
	}

	if _, err := r.deps.Workspace.EnsureBareRepo(ctx, *repo); err != nil {
		r.fail(ctx, &job, "ensuring bare repo failed", err)
		return
	}

	worktree, err := r.deps.Workspace.CreateWorktree(ctx, *repo, job)
	if err != nil {
		r.fail(ctx, &job, "creating worktree failed", err)
		return
	}
	job.WorktreePath = &worktree
	defer r.deps.Workspace.RemoveWorktree(context.Background(), *repo, worktree)

	maxIterations := 1
	if job.MaxIterations != nil && *job.MaxIterations > 0 {
		maxIterations = *job.MaxIterations
	}

	specMode := job.SpecMode()
	completionReason := "max_iterations"
	iterationsRun := 0

	for iteration := 1; iteration <= maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			r.fail(ctx, &job, "context cancelled mid-loop", ctx.Err())
			return
		default:
		}

		iterationsRun = iteration
		var terminate bool
		var iterErr error

		if specMode {
			terminate, iterErr = r.runTaskIteration(ctx, &job, worktree, iteration)
		} else {
			terminate, iterErr = r.runPromiseIteration(ctx, &job, worktree, iteration)
		}

		if iterErr != nil {
			r.fail(ctx, &job, "iteration_error", iterErr)
			return
		}

		if terminate {
			if specMode {
				completionReason = "all_stories_complete"
			} else {
				completionReason = "promise_detected"
			}
			break
		}
	}

	current := iterationsRun
	job.CurrentIteration = &current
	job.TotalIterations = &current

	committed, err := r.deps.Workspace.CommitAndPush(ctx, worktree, job)
	if err != nil {
		r.fail(ctx, &job, "commit and push failed", err)
		return
	}
	if committed {
		if err := r.openPullRequest(ctx, &job, repo, worktree); err != nil {
			r.fail(ctx, &job, "pull request creation failed", err)
			return
		}
	}

	if err := completeJob(ctx, stores, &job, completionReason); err != nil {
		slog.ErrorContext(ctx, "persisting completed loop job", "job_id", job.ID, "error", err)
	}
}

// runPromiseIteration runs one promise-token-mode iteration, returning
// terminate=true once the promise token is detected in raw CLI output.
func (r *LoopRunner) runPromiseIteration(ctx context.Context, job *model.Job, worktree string, iterationNumber int) (bool, error) {
	progressPath := filepath.Join(worktree, progressFileName)
	progress, _ := os.ReadFile(progressPath)

	promiseToken := defaultPromiseToken
	if job.CompletionPromise != nil && *job.CompletionPromise != "" {
		promiseToken = *job.CompletionPromise
	}

	prompt := buildLoopPrompt(job.Prompt, string(progress), iterationNumber, maxIterationsOf(job), promiseToken)

	output, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
	if err != nil {
		return false, err
	}

	summary := jsonextract.Summary(output)
	message := fmt.Sprintf("iter %d: %s", iterationNumber, summary)
	commit, err := r.deps.Workspace.CommitWithMessage(ctx, worktree, message)
	if err != nil {
		return false, err
	}

	report := r.deps.Feedback.Run(ctx, worktree, job.FeedbackCommands)
	promiseDetected := strings.Contains(output, promiseToken)

	it := model.JobIteration{
		JobID:           job.ID,
		IterationNumber: iterationNumber,
		Prompt:          prompt,
		OutputSummary:   &summary,
		PromiseDetected: promiseDetected,
		FeedbackResults: toFeedbackResults(report),
		ExitCode:        &exitCode,
	}
	if commit.HasChanges {
		it.CommitSHA = &commit.SHA
	}
	if err := r.deps.Stores.JobIterations().Create(ctx, &it); err != nil {
		return false, fmt.Errorf("recording iteration: %w", err)
	}

	if exitCode != 0 && iterationNumber >= maxIterationsOf(job) {
		return false, fmt.Errorf("CLI exited with status %d on final iteration", exitCode)
	}

	return promiseDetected, nil
}

// runTaskIteration runs one specMode iteration: pick the next eligible task
// by the dependency rule, invoke the CLI to complete exactly it, and detect
// its own completion token rather than a single loop-wide promise.
func (r *LoopRunner) runTaskIteration(ctx context.Context, job *model.Job, worktree string, iterationNumber int) (bool, error) {
	tasks := taskList(job)
	if len(tasks) == 0 {
		return true, nil
	}

	completed, err := r.completedTaskIDs(ctx, job.ID)
	if err != nil {
		return false, err
	}

	task, ok := nextEligibleTask(tasks, completed)
	if !ok {
		return true, nil
	}

	prompt := buildTaskPrompt(job.Prompt, task, iterationNumber, maxIterationsOf(job))

	output, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
	if err != nil {
		return false, err
	}

	summary := jsonextract.Summary(output)
	message := fmt.Sprintf("iter %d: task %d %s", iterationNumber, task.ID, task.Title)
	commit, err := r.deps.Workspace.CommitWithMessage(ctx, worktree, message)
	if err != nil {
		return false, err
	}

	report := r.deps.Feedback.Run(ctx, worktree, job.FeedbackCommands)
	taskDone := taskCompleteFor(output, task.ID)

	taskID := task.ID
	it := model.JobIteration{
		JobID:           job.ID,
		IterationNumber: iterationNumber,
		Prompt:          prompt,
		OutputSummary:   &summary,
		PromiseDetected: taskDone,
		FeedbackResults: toFeedbackResults(report),
		ExitCode:        &exitCode,
		StoryID:         &taskID,
	}
	if commit.HasChanges {
		it.CommitSHA = &commit.SHA
	}
	if err := r.deps.Stores.JobIterations().Create(ctx, &it); err != nil {
		return false, fmt.Errorf("recording iteration: %w", err)
	}

	if exitCode != 0 && iterationNumber >= maxIterationsOf(job) {
		return false, fmt.Errorf("CLI exited with status %d on final iteration", exitCode)
	}

	if taskDone {
		completed = append(completed, task.ID)
	}
	_, stillEligible := nextEligibleTask(tasks, completed)
	return !stillEligible, nil
}

func (r *LoopRunner) completedTaskIDs(ctx context.Context, jobID int64) ([]int, error) {
	iterations, err := r.deps.Stores.JobIterations().ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var completed []int
	for _, it := range iterations {
		if it.PromiseDetected && it.StoryID != nil {
			completed = append(completed, *it.StoryID)
		}
	}
	return completed, nil
}

func taskList(job *model.Job) []model.Task {
	if job.SpecOutput == nil {
		return nil
	}
	return job.SpecOutput.Tasks
}

// nextEligibleTask returns the first task, in list order, whose id is not
// already completed and whose dependencies are all completed.
func nextEligibleTask(tasks []model.Task, completed []int) (model.Task, bool) {
	completedSet := make(map[int]bool, len(completed))
	for _, id := range completed {
		completedSet[id] = true
	}
	for _, t := range tasks {
		if completedSet[t.ID] {
			continue
		}
		eligible := true
		for _, dep := range t.Dependencies {
			if !completedSet[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			return t, true
		}
	}
	return model.Task{}, false
}

func taskCompleteFor(output string, taskID int) bool {
	matches := taskCompleteRe.FindAllStringSubmatch(output, -1)
	for _, m := range matches {
		if m[1] == fmt.Sprintf("%d", taskID) {
			return true
		}
	}
	return false
}

func maxIterationsOf(job *model.Job) int {
	if job.MaxIterations != nil && *job.MaxIterations > 0 {
		return *job.MaxIterations
	}
	return 1
}

func buildLoopPrompt(basePrompt, progress string, iteration, maxIterations int, promiseToken string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d of %d.\n", iteration, maxIterations)
	fmt.Fprintf(&b, "Emit %q when the work described below is fully complete.\n\n", promiseToken)
	if strings.TrimSpace(progress) != "" {
		b.WriteString("Progress so far (" + progressFileName + "):\n" + progress + "\n\n")
	}
	b.WriteString(basePrompt + "\n\n")
	b.WriteString("Write a \"## Summary\" section describing this iteration's changes, append it to " + progressFileName + ", prioritize fixing any previously failed checks, and emit the completion token only once everything above is done.\n")
	return b.String()
}

func buildTaskPrompt(basePrompt string, task model.Task, iteration, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d of %d. Implement exactly task %d: %s\n", iteration, maxIterations, task.ID, task.Title)
	if task.Description != "" {
		b.WriteString(task.Description + "\n")
	}
	if len(task.Files) > 0 {
		b.WriteString("Relevant files: " + strings.Join(task.Files, ", ") + "\n")
	}
	b.WriteString("\nContext:\n" + basePrompt + "\n\n")
	fmt.Fprintf(&b, "When task %d is fully complete, emit <task-complete>%d</task-complete>. Do not implement any other task.\n", task.ID, task.ID)
	return b.String()
}

func (r *LoopRunner) repositoryFor(ctx context.Context, job model.Job) (*model.Repository, error) {
	if job.RepositoryID == nil {
		return nil, fmt.Errorf("job has no repository_id")
	}
	return r.deps.Stores.Repositories().GetByID(ctx, *job.RepositoryID)
}

func (r *LoopRunner) openPullRequest(ctx context.Context, job *model.Job, repo *model.Repository, worktree string) error {
	pr, err := r.deps.Workspace.CreatePullRequest(ctx, *repo, *job, worktree)
	if err != nil {
		return err
	}

	branch, err := r.deps.Stores.CodeBranches().Upsert(ctx, &model.CodeBranch{
		RepositoryID: repo.ID,
		Name:         job.BranchName,
	})
	if err != nil {
		return fmt.Errorf("recording branch provenance: %w", err)
	}

	pullRequest, err := r.deps.Stores.CodePullRequests().Upsert(ctx, &model.CodePullRequest{
		RepositoryID: repo.ID,
		Number:       pr.Number,
		Title:        pr.Title,
		URL:          pr.URL,
		FilesChanged: pr.FilesChanged,
	})
	if err != nil {
		return fmt.Errorf("recording pull request provenance: %w", err)
	}

	job.CodeBranchID = &branch.ID
	job.CodePullRequestID = &pullRequest.ID
	job.PRURL = &pr.URL
	job.PRNumber = &pr.Number
	job.FilesChanged = pr.FilesChanged
	return nil
}

func (r *LoopRunner) fail(ctx context.Context, job *model.Job, reason string, err error) {
	slog.ErrorContext(ctx, "loop job failed", "job_id", job.ID, "reason", reason, "error", err)
	recordMessage(ctx, r.deps.Stores, job.ID, model.JobMessageSystem, reason+": "+err.Error())
	if ferr := failJob(ctx, r.deps.Stores, job, reason, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed loop job", "job_id", job.ID, "error", ferr)
	}
}
