package runner_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/runner"
)

var _ = Describe("PRDRunner", func() {
	var (
		stores   *fakeStores
		ws       *fakeWorkspace
		invoker  *fakeInvoker
		r        *runner.PRDRunner
		job      model.Job
		worktree string
	)

	BeforeEach(func() {
		stores = newFakeStores()
		invoker = &fakeInvoker{}
		worktree = GinkgoT().TempDir()

		ws = &fakeWorkspace{
			createWorktreeFn: func(_ context.Context, _ model.Repository, _ model.Job) (string, error) {
				return worktree, nil
			},
		}

		repoID := int64(3)
		featureID := int64(5)
		stories := []model.Story{{ID: 1, Title: "Only story"}}

		stores.repositories.getByIDFn = func(_ context.Context, id int64) (*model.Repository, error) {
			return &model.Repository{ID: id, RepoName: "widgets", DefaultBranch: "main"}, nil
		}
		stores.features.getByIDFn = func(_ context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: id, Prd: &model.Prd{Title: "Onboarding", Stories: stories}}, nil
		}

		one := 1
		job = model.Job{
			ID: 11, RepositoryID: &repoID, FeatureID: &featureID,
			BranchName: "agent/11", MaxIterations: &one,
		}

		r = runner.NewPRDRunner(runner.Deps{
			Stores:    stores,
			Workspace: ws,
			Invoker:   invoker,
			Feedback:  &fakeFeedback{},
		})
	})

	It("fails the job when the feature carries no prd", func() {
		stores.features.getByIDFn = func(_ context.Context, id int64) (*model.Feature, error) {
			return &model.Feature{ID: id}, nil
		}

		r.Run(context.Background(), job)

		Expect(stores.jobs.updated).To(HaveLen(1))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusFailed))
		Expect(*stores.jobs.updated[0].Error).To(ContainSubstring("no prd document"))
	})

	It("records an iteration and completes when the story passes within the budget", func() {
		invoker.runFn = func(_ context.Context, _ int64, _ []string, cwd string, _ []string, _, _ cliinvoker.LineCallback) (cliinvoker.Result, error) {
			prd := model.Prd{Title: "Onboarding", Stories: []model.Story{{ID: 1, Title: "Only story", Passes: true}}}
			data, _ := json.Marshal(prd)
			Expect(os.WriteFile(filepath.Join(cwd, "prd.json"), data, 0o644)).To(Succeed())
			return cliinvoker.Result{ExitCode: 0}, nil
		}

		r.Run(context.Background(), job)

		Expect(stores.jobIterations.created).To(HaveLen(1))
		Expect(stores.jobs.updated).To(HaveLen(1))
		final := stores.jobs.updated[0]
		Expect(final.Status).To(Equal(model.JobStatusCompleted))
		Expect(*final.CompletionReason).To(Equal("all_stories_complete"))
	})

	It("fails the job when the final iteration's CLI exits non-zero", func() {
		invoker.runFn = func(_ context.Context, _ int64, _ []string, _ string, _ []string, _, _ cliinvoker.LineCallback) (cliinvoker.Result, error) {
			return cliinvoker.Result{ExitCode: 1}, nil
		}

		r.Run(context.Background(), job)

		Expect(stores.jobs.updated).To(HaveLen(1))
		Expect(stores.jobs.updated[0].Status).To(Equal(model.JobStatusFailed))
	})
})
