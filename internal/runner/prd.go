package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"basegraph.app/relay/internal/jsonextract"
	"basegraph.app/relay/internal/model"
)

const (
	prdFileName      = "prd.json"
	prdProgressFile  = "progress.txt"
	prdPromiseToken  = "<promise>COMPLETE</promise>"
)

// PRDRunner drives the CLI one story at a time against a worktree-resident
// prd.json, used when job_type=ralph and prd_mode=true.
type PRDRunner struct {
	deps Deps
}

func NewPRDRunner(deps Deps) *PRDRunner {
	return &PRDRunner{deps: deps}
}

func (r *PRDRunner) Run(ctx context.Context, job model.Job) {
	stores := r.deps.Stores

	repo, err := r.repositoryFor(ctx, job)
	if err != nil {
		r.fail(ctx, &job, "repository lookup failed", err)
		return
	}

	feature, err := r.featureFor(ctx, job)
	if err != nil {
		r.fail(ctx, &job, "feature lookup failed", err)
		return
	}

	if feature.Prd == nil {
		r.fail(ctx, &job, "feature has no prd", fmt.Errorf("feature %d has no prd document", feature.ID))
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

	prd := *feature.Prd
	progress := model.PrdProgress{}
	if job.PrdProgress != nil {
		progress = *job.PrdProgress
	}

	maxIterations := 1
	if job.MaxIterations != nil && *job.MaxIterations > 0 {
		maxIterations = *job.MaxIterations
	}

	completionReason := "max_iterations"
	iterationsRun := 0

	for iteration := 1; iteration <= maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			r.fail(ctx, &job, "context cancelled mid-loop", ctx.Err())
			return
		default:
		}

		story, ok := nextStory(prd, progress.CompletedStoryIDs)
		if !ok {
			completionReason = "all_stories_complete"
			break
		}

		iterationsRun = iteration
		progress.CurrentStoryID = &story.ID

		if err := writePRDFile(worktree, prd); err != nil {
			r.fail(ctx, &job, "writing prd.json failed", err)
			return
		}

		prompt := buildPRDPrompt(prd, story, job.BranchName, iteration, maxIterations)

		output, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
		if err != nil {
			r.fail(ctx, &job, "iteration_error", err)
			return
		}

		summary := jsonextract.Summary(output)
		message := fmt.Sprintf("feat: [%d] %s", story.ID, story.Title)
		commit, err := r.deps.Workspace.CommitWithMessage(ctx, worktree, message)
		if err != nil {
			r.fail(ctx, &job, "committing iteration failed", err)
			return
		}

		report := r.deps.Feedback.Run(ctx, worktree, job.FeedbackCommands)

		updatedPRD, readErr := readPRDFile(worktree)
		if readErr == nil {
			prd = updatedPRD
		}

		newlyCompleted := newlyPassingStoryIDs(prd, progress.CompletedStoryIDs)
		for _, id := range newlyCompleted {
			sha := ""
			if commit.HasChanges {
				sha = commit.SHA
			}
			progress = progress.MarkCompleted(id, model.Commit{
				StoryID:   id,
				SHA:       sha,
				Message:   message,
				Timestamp: time.Now(),
			})
		}

		storyID := story.ID
		it := model.JobIteration{
			JobID:           job.ID,
			IterationNumber: iteration,
			Prompt:          prompt,
			OutputSummary:   &summary,
			PromiseDetected: strings.Contains(output, prdPromiseToken),
			FeedbackResults: toFeedbackResults(report),
			ExitCode:        &exitCode,
			StoryID:         &storyID,
		}
		if commit.HasChanges {
			it.CommitSHA = &commit.SHA
		}
		if err := stores.JobIterations().Create(ctx, &it); err != nil {
			r.fail(ctx, &job, "recording iteration failed", err)
			return
		}

		if err := stores.Features().UpdatePrd(ctx, feature.ID, &prd); err != nil {
			slog.ErrorContext(ctx, "persisting prd snapshot", "job_id", job.ID, "error", err)
		}
		job.PrdProgress = &progress
		job.Prd = &prd

		if exitCode != 0 && iteration >= maxIterations {
			r.fail(ctx, &job, "iteration_error", fmt.Errorf("CLI exited with status %d on final iteration", exitCode))
			return
		}

		if allStoriesPass(prd) {
			completionReason = "all_stories_complete"
			break
		}
	}

	current := iterationsRun
	job.CurrentIteration = &current
	job.TotalIterations = &current

	// Push and open a PR regardless of whether every story finished.
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
		slog.ErrorContext(ctx, "persisting completed prd job", "job_id", job.ID, "error", err)
	}
}

// nextStory returns the highest-priority (first, in PRD order) story that
// neither passes nor is already recorded completed.
func nextStory(prd model.Prd, completedStoryIDs []int) (model.Story, bool) {
	completed := make(map[int]bool, len(completedStoryIDs))
	for _, id := range completedStoryIDs {
		completed[id] = true
	}
	for _, s := range prd.Stories {
		if !s.Passes && !completed[s.ID] {
			return s, true
		}
	}
	return model.Story{}, false
}

func allStoriesPass(prd model.Prd) bool {
	_, ok := prd.NextUnfinished()
	return !ok
}

// newlyPassingStoryIDs diffs prd's passing stories against the already
// recorded completed set.
func newlyPassingStoryIDs(prd model.Prd, completedStoryIDs []int) []int {
	completed := make(map[int]bool, len(completedStoryIDs))
	for _, id := range completedStoryIDs {
		completed[id] = true
	}
	var newly []int
	for _, s := range prd.Stories {
		if s.Passes && !completed[s.ID] {
			newly = append(newly, s.ID)
		}
	}
	return newly
}

func writePRDFile(worktree string, prd model.Prd) error {
	data, err := json.MarshalIndent(prd, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(worktree, prdFileName), data, 0o644)
}

func readPRDFile(worktree string) (model.Prd, error) {
	data, err := os.ReadFile(filepath.Join(worktree, prdFileName))
	if err != nil {
		return model.Prd{}, err
	}
	var prd model.Prd
	if err := json.Unmarshal(data, &prd); err != nil {
		return model.Prd{}, err
	}
	return prd, nil
}

func buildPRDPrompt(prd model.Prd, story model.Story, branchName string, iteration, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d of %d. PRD: %q. Branch: %s.\n", iteration, maxIterations, prd.Title, branchName)
	fmt.Fprintf(&b, "Implement exactly ONE story: [%d] %s\n", story.ID, story.Title)
	if story.Description != nil {
		b.WriteString(*story.Description + "\n")
	}
	if len(story.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range story.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
	}
	b.WriteString("\nDo not implement any other story in this iteration. Run quality checks. ")
	b.WriteString("Update " + prdFileName + " in the worktree, setting this story's \"passes\" to true. ")
	b.WriteString("Append a line to " + prdProgressFile + " describing what changed. ")
	fmt.Fprintf(&b, "Emit %q only once every story in %s passes.\n", prdPromiseToken, prdFileName)
	return b.String()
}

func (r *PRDRunner) repositoryFor(ctx context.Context, job model.Job) (*model.Repository, error) {
	if job.RepositoryID == nil {
		return nil, fmt.Errorf("job has no repository_id")
	}
	return r.deps.Stores.Repositories().GetByID(ctx, *job.RepositoryID)
}

func (r *PRDRunner) featureFor(ctx context.Context, job model.Job) (*model.Feature, error) {
	if job.FeatureID == nil {
		return nil, fmt.Errorf("job has no feature_id")
	}
	return r.deps.Stores.Features().GetByID(ctx, *job.FeatureID)
}

func (r *PRDRunner) openPullRequest(ctx context.Context, job *model.Job, repo *model.Repository, worktree string) error {
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

func (r *PRDRunner) fail(ctx context.Context, job *model.Job, reason string, err error) {
	slog.ErrorContext(ctx, "prd job failed", "job_id", job.ID, "reason", reason, "error", err)
	recordMessage(ctx, r.deps.Stores, job.ID, model.JobMessageSystem, reason+": "+err.Error())
	if ferr := failJob(ctx, r.deps.Stores, job, reason, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed prd job", "job_id", job.ID, "error", ferr)
	}
}
