package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"basegraph.app/relay/internal/jsonextract"
	"basegraph.app/relay/internal/model"
)

// PRDGenerationRunner produces a Prd document from a feature's title and
// description in a single CLI call. Structurally a sibling of the one-shot
// runner, but its CLI output is a JSON document rather than a commit: no
// branch is pushed and no PR is opened.
type PRDGenerationRunner struct {
	deps Deps
}

func NewPRDGenerationRunner(deps Deps) *PRDGenerationRunner {
	return &PRDGenerationRunner{deps: deps}
}

// generatedPrd is the wire shape the coder CLI is instructed to emit.
type generatedPrd struct {
	Title       string                  `json:"title"`
	Description *string                 `json:"description,omitempty"`
	Stories     []generatedPrdStory     `json:"stories"`
}

type generatedPrdStory struct {
	ID                 int      `json:"id"`
	Title               string   `json:"title"`
	Description         *string  `json:"description,omitempty"`
	AcceptanceCriteria  []string `json:"acceptanceCriteria,omitempty"`
}

func (r *PRDGenerationRunner) Run(ctx context.Context, job model.Job) {
	stores := r.deps.Stores

	feature, err := r.featureFor(ctx, job)
	if err != nil {
		r.fail(ctx, &job, "feature lookup failed", err)
		return
	}

	var worktree string
	var repo *model.Repository
	if job.RepositoryID != nil {
		repo, err = stores.Repositories().GetByID(ctx, *job.RepositoryID)
		if err == nil {
			if _, err := r.deps.Workspace.EnsureBareRepo(ctx, *repo); err == nil {
				if wt, err := r.deps.Workspace.CreateWorktree(ctx, *repo, job); err == nil {
					worktree = wt
					defer r.deps.Workspace.RemoveWorktree(context.Background(), *repo, worktree)
				}
			}
		}
	}

	prompt := buildPRDGenerationPrompt(feature, job.Prompt)

	output, exitCode, err := invokeCLI(ctx, r.deps, job.ID, buildCLIArgs(r.deps.CLIModel, prompt), worktree, nil)
	if err != nil {
		r.fail(ctx, &job, "CLI invocation failed", err)
		return
	}
	job.ExitCode = &exitCode
	if exitCode != 0 {
		r.fail(ctx, &job, "non-zero exit", fmt.Errorf("CLI exited with status %d", exitCode))
		return
	}

	var generated generatedPrd
	if err := jsonextract.Extract(output, &generated); err != nil {
		recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "raw output: "+output)
		r.fail(ctx, &job, "extracting generated prd failed", err)
		return
	}

	if err := validateGeneratedPrd(generated); err != nil {
		recordMessage(ctx, stores, job.ID, model.JobMessageSystem, "raw output: "+output)
		r.fail(ctx, &job, "generated prd failed validation", err)
		return
	}

	prd := model.Prd{Title: generated.Title, Description: generated.Description}
	for _, s := range generated.Stories {
		prd.Stories = append(prd.Stories, model.Story{
			ID:                 s.ID,
			Title:              s.Title,
			Description:        s.Description,
			AcceptanceCriteria: s.AcceptanceCriteria,
			Passes:             false,
		})
	}

	if err := stores.Features().UpdatePrd(ctx, feature.ID, &prd); err != nil {
		r.fail(ctx, &job, "persisting generated prd failed", err)
		return
	}

	job.Prd = &prd
	job.PrdProgress = &model.PrdProgress{CompletedStoryIDs: []int{}, Commits: []model.Commit{}}
	total := 1
	job.TotalIterations = &total
	job.CurrentIteration = &total

	if err := completeJob(ctx, stores, &job, "generated"); err != nil {
		slog.ErrorContext(ctx, "persisting completed prd-generation job", "job_id", job.ID, "error", err)
	}
}

func validateGeneratedPrd(p generatedPrd) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("title must be non-empty")
	}
	if len(p.Stories) == 0 {
		return fmt.Errorf("stories must be non-empty")
	}
	ids := make([]int, 0, len(p.Stories))
	seen := make(map[int]bool, len(p.Stories))
	for _, s := range p.Stories {
		if s.ID <= 0 {
			return fmt.Errorf("story ids must be positive, got %d", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate story id %d", s.ID)
		}
		seen[s.ID] = true
		ids = append(ids, s.ID)
	}
	if !sort.IntsAreSorted(ids) {
		return fmt.Errorf("story ids must be ascending, got %v", ids)
	}
	return nil
}

func buildPRDGenerationPrompt(feature *model.Feature, extra string) string {
	var b strings.Builder
	b.WriteString("Generate a product-requirements document for the following feature.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", feature.Title)
	if feature.FunctionalityNotes != nil {
		b.WriteString("Functionality notes: " + *feature.FunctionalityNotes + "\n")
	}
	if feature.ClientContext != nil {
		b.WriteString("Client context: " + *feature.ClientContext + "\n")
	}
	if feature.Prd != nil {
		b.WriteString("\nAn existing PRD already exists; revise it rather than starting over:\n")
		for _, s := range feature.Prd.Stories {
			fmt.Fprintf(&b, "- [%d] %s (passes=%v)\n", s.ID, s.Title, s.Passes)
		}
	}
	if strings.TrimSpace(extra) != "" {
		b.WriteString("\nAdditional instructions:\n" + extra + "\n")
	}
	b.WriteString("\nRespond with a fenced ```json block containing exactly: ")
	b.WriteString(`{"title": string, "description"?: string, "stories": [{"id": int (unique, ascending, positive), "title": string, "description"?: string, "acceptanceCriteria"?: [string]}]}`)
	b.WriteString(". Every story's passes starts false and is omitted from this document.\n")
	return b.String()
}

func (r *PRDGenerationRunner) featureFor(ctx context.Context, job model.Job) (*model.Feature, error) {
	if job.FeatureID == nil {
		return nil, fmt.Errorf("job has no feature_id")
	}
	return r.deps.Stores.Features().GetByID(ctx, *job.FeatureID)
}

func (r *PRDGenerationRunner) fail(ctx context.Context, job *model.Job, reason string, err error) {
	slog.ErrorContext(ctx, "prd-generation job failed", "job_id", job.ID, "reason", reason, "error", err)
	recordMessage(ctx, r.deps.Stores, job.ID, model.JobMessageSystem, reason+": "+err.Error())
	if ferr := failJob(ctx, r.deps.Stores, job, reason, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed prd-generation job", "job_id", job.ID, "error", ferr)
	}
}
