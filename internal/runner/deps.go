// Package runner implements the five job-execution strategies the
// scheduler dispatches to: one-shot, loop (promise token), PRD
// (story-by-story), PRD-generation, and the spec pipeline.
package runner

import (
	"context"
	"fmt"
	"time"

	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/feedback"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/store"
	"basegraph.app/relay/internal/workspace"
)

// Stores is the subset of *store.Stores the runners need. Narrowed to an
// interface so each runner can be unit tested against a fake store without
// standing up a database.
type Stores interface {
	Jobs() store.JobStore
	JobMessages() store.JobMessageStore
	JobIterations() store.JobIterationStore
	Features() store.FeatureStore
	Repositories() store.RepositoryStore
	CodeBranches() store.CodeBranchStore
	CodePullRequests() store.CodePullRequestStore
	Clients() store.ClientStore
}

// Workspace is the subset of *workspace.Manager the runners need.
type Workspace interface {
	EnsureBareRepo(ctx context.Context, repo model.Repository) (string, error)
	CreateWorktree(ctx context.Context, repo model.Repository, job model.Job) (string, error)
	RemoveWorktree(ctx context.Context, repo model.Repository, path string)
	CommitAndPush(ctx context.Context, worktree string, job model.Job) (bool, error)
	CommitWithMessage(ctx context.Context, worktree, message string) (workspace.CommitResult, error)
	CreatePullRequest(ctx context.Context, repo model.Repository, job model.Job, worktree string) (*workspace.PullRequestResult, error)
}

// Invoker is the subset of *cliinvoker.Invoker the runners need.
type Invoker interface {
	Run(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error)
}

// Feedback is the subset of *feedback.Runner the runners need.
type Feedback interface {
	Run(ctx context.Context, worktree string, customCommands []string) feedback.Report
}

// Deps are the shared collaborators every runner is built from.
type Deps struct {
	Stores    Stores
	Workspace Workspace
	Invoker   Invoker
	Feedback  Feedback
	Wake      WakePublisher
	// CLIModel, if set, is passed to the coder CLI as --model.
	CLIModel string
}

// buildCLIArgs assembles the coder CLI's fixed invocation shape:
// --print --dangerously-skip-permissions --output-format text [--model tag] prompt.
func buildCLIArgs(model, prompt string) []string {
	args := []string{"--print", "--dangerously-skip-permissions", "--output-format", "text"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return append(args, prompt)
}

// WakePublisher lets a runner ask the scheduler to re-check the queue,
// used by the spec pipeline's auto-progression step after it enqueues the
// next phase's job.
type WakePublisher interface {
	Publish(ctx context.Context)
}

// recordMessage appends a JobMessage, discarding store errors (they are not
// logged either) since losing a log line must never abort a running job.
func recordMessage(ctx context.Context, stores Stores, jobID int64, kind model.JobMessageKind, content string) {
	_ = stores.JobMessages().Append(ctx, &model.JobMessage{
		JobID:   jobID,
		Kind:    kind,
		Content: content,
	})
}

// invokeCLI wraps the CLI invoker for a single-shot call (no streaming
// callbacks needed by the caller beyond message persistence), returning the
// concatenated stdout.
func invokeCLI(ctx context.Context, deps Deps, jobID int64, args []string, cwd string, env []string) (stdout string, exitCode int, err error) {
	var out []byte
	res, runErr := deps.Invoker.Run(ctx, jobID, args, cwd, env,
		func(line string) {
			out = append(out, line...)
			out = append(out, '\n')
			recordMessage(ctx, deps.Stores, jobID, model.JobMessageStdout, line)
		},
		func(line string) {
			recordMessage(ctx, deps.Stores, jobID, model.JobMessageStderr, line)
		},
	)
	if runErr != nil {
		return "", 0, runErr
	}
	return string(out), res.ExitCode, nil
}

// failJob marks a job failed with the given error and completion reason.
func failJob(ctx context.Context, stores Stores, job *model.Job, reason, errMsg string) error {
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.CompletedAt = &now
	job.CompletionReason = &reason
	job.Error = &errMsg
	return stores.Jobs().Update(ctx, job)
}

// completeJob marks a job completed.
func completeJob(ctx context.Context, stores Stores, job *model.Job, reason string) error {
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	if reason != "" {
		job.CompletionReason = &reason
	}
	return stores.Jobs().Update(ctx, job)
}

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// toFeedbackResults converts a feedback.Report's per-command results into
// the JobIteration's embedded shape, dropping the category label (commands
// are already fully described by their text).
func toFeedbackResults(report feedback.Report) []model.FeedbackResult {
	results := make([]model.FeedbackResult, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, model.FeedbackResult{
			Command:  r.Command,
			ExitCode: r.ExitCode,
			Output:   r.Output,
			TimedOut: r.TimedOut,
		})
	}
	return results
}
