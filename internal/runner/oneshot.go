package runner

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/relay/internal/model"
)

// OneShotRunner executes a job's prompt against the CLI exactly once: no
// iteration, no promise-token detection, no story tracking. Used for
// job_type=code and for any job_type the router does not otherwise
// recognise.
type OneShotRunner struct {
	deps Deps
}

func NewOneShotRunner(deps Deps) *OneShotRunner {
	return &OneShotRunner{deps: deps}
}

func (r *OneShotRunner) Run(ctx context.Context, job model.Job) {
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

	recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "starting one-shot run")

	_, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, job.Prompt), worktree, nil)
	if err != nil {
		r.fail(ctx, &job, "CLI invocation failed", err)
		return
	}
	job.ExitCode = &exitCode
	if exitCode != 0 {
		r.fail(ctx, &job, "non-zero exit", fmt.Errorf("CLI exited with status %d", exitCode))
		return
	}

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

	reason := "completed"
	if err := completeJob(ctx, stores, &job, reason); err != nil {
		slog.ErrorContext(ctx, "persisting completed one-shot job", "job_id", job.ID, "error", err)
	}
}

func (r *OneShotRunner) repositoryFor(ctx context.Context, job model.Job) (*model.Repository, error) {
	if job.RepositoryID == nil {
		return nil, fmt.Errorf("job has no repository_id")
	}
	return r.deps.Stores.Repositories().GetByID(ctx, *job.RepositoryID)
}

// openPullRequest creates the PR and upserts the CodeBranch/CodePullRequest
// provenance rows, attaching their ids plus the PR's url/number/files_changed
// to job.
func (r *OneShotRunner) openPullRequest(ctx context.Context, job *model.Job, repo *model.Repository, worktree string) error {
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

func (r *OneShotRunner) fail(ctx context.Context, job *model.Job, reason string, err error) {
	slog.ErrorContext(ctx, "one-shot job failed", "job_id", job.ID, "reason", reason, "error", err)
	recordMessage(ctx, r.deps.Stores, job.ID, model.JobMessageSystem, reason+": "+err.Error())
	if ferr := failJob(ctx, r.deps.Stores, job, reason, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed one-shot job", "job_id", job.ID, "error", ferr)
	}
}
