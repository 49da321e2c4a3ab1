package runner_test

import (
	"context"
	"errors"

	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/feedback"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/store"
	"basegraph.app/relay/internal/workspace"
)

var errBoom = errors.New("boom")

type fakeJobStore struct {
	createFn func(ctx context.Context, job *model.Job) error
	updateFn func(ctx context.Context, job *model.Job) error
	updated  []model.Job
}

func (f *fakeJobStore) GetByID(ctx context.Context, id int64) (*model.Job, error) { return nil, nil }
func (f *fakeJobStore) Create(ctx context.Context, job *model.Job) error {
	if f.createFn != nil {
		return f.createFn(ctx, job)
	}
	return nil
}
func (f *fakeJobStore) Update(ctx context.Context, job *model.Job) error {
	f.updated = append(f.updated, *job)
	if f.updateFn != nil {
		return f.updateFn(ctx, job)
	}
	return nil
}
func (f *fakeJobStore) ListQueued(ctx context.Context, limit int) ([]model.Job, error) { return nil, nil }
func (f *fakeJobStore) ListRunning(ctx context.Context) ([]model.Job, error)           { return nil, nil }
func (f *fakeJobStore) CountRunning(ctx context.Context) (int, error)                  { return 0, nil }
func (f *fakeJobStore) ClaimQueued(ctx context.Context, id int64) (bool, *model.Job, error) {
	return false, nil, nil
}
func (f *fakeJobStore) FailRunning(ctx context.Context, errMsg string) (int, error) { return 0, nil }
func (f *fakeJobStore) ListByFeature(ctx context.Context, featureID int64) ([]model.Job, error) {
	return nil, nil
}

type fakeJobMessageStore struct {
	appended []model.JobMessage
}

func (f *fakeJobMessageStore) Append(ctx context.Context, msg *model.JobMessage) error {
	f.appended = append(f.appended, *msg)
	return nil
}
func (f *fakeJobMessageStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobMessage, error) {
	return nil, nil
}

type fakeJobIterationStore struct {
	created []model.JobIteration
}

func (f *fakeJobIterationStore) Create(ctx context.Context, it *model.JobIteration) error {
	f.created = append(f.created, *it)
	return nil
}
func (f *fakeJobIterationStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobIteration, error) {
	var out []model.JobIteration
	for _, it := range f.created {
		if it.JobID == jobID {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeFeatureStore struct {
	getByIDFn    func(ctx context.Context, id int64) (*model.Feature, error)
	prdFn        func(ctx context.Context, id int64, prd *model.Prd) error
	specOutputFn func(ctx context.Context, id int64, out *model.SpecOutput) error
}

func (f *fakeFeatureStore) GetByID(ctx context.Context, id int64) (*model.Feature, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}
func (f *fakeFeatureStore) UpdatePrd(ctx context.Context, id int64, prd *model.Prd) error {
	if f.prdFn != nil {
		return f.prdFn(ctx, id, prd)
	}
	return nil
}
func (f *fakeFeatureStore) UpdateSpecOutput(ctx context.Context, id int64, out *model.SpecOutput) error {
	if f.specOutputFn != nil {
		return f.specOutputFn(ctx, id, out)
	}
	return nil
}
func (f *fakeFeatureStore) UpdateWorkflowStage(ctx context.Context, id int64, stageID int64) error {
	return nil
}

type fakeRepositoryStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Repository, error)
}

func (f *fakeRepositoryStore) GetByID(ctx context.Context, id int64) (*model.Repository, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}
func (f *fakeRepositoryStore) GetByClientAndName(ctx context.Context, clientID int64, repoName string) (*model.Repository, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRepositoryStore) Create(ctx context.Context, repo *model.Repository) error { return nil }

type fakeCodeBranchStore struct {
	upsertFn func(ctx context.Context, b *model.CodeBranch) (*model.CodeBranch, error)
}

func (f *fakeCodeBranchStore) Upsert(ctx context.Context, b *model.CodeBranch) (*model.CodeBranch, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, b)
	}
	return b, nil
}

type fakeCodePullRequestStore struct {
	upsertFn func(ctx context.Context, pr *model.CodePullRequest) (*model.CodePullRequest, error)
}

func (f *fakeCodePullRequestStore) Upsert(ctx context.Context, pr *model.CodePullRequest) (*model.CodePullRequest, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, pr)
	}
	return pr, nil
}

type fakeClientStore struct{}

func (f *fakeClientStore) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	return &model.Client{ID: id, Name: "Acme"}, nil
}
func (f *fakeClientStore) UpdateConstitution(ctx context.Context, id int64, constitution string) error {
	return nil
}

// fakeStores wires the per-entity fakes above into runner.Stores.
type fakeStores struct {
	jobs          *fakeJobStore
	jobMessages   *fakeJobMessageStore
	jobIterations *fakeJobIterationStore
	features      *fakeFeatureStore
	repositories  *fakeRepositoryStore
	codeBranches  *fakeCodeBranchStore
	codePRs       *fakeCodePullRequestStore
	clients       store.ClientStore
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		jobs:          &fakeJobStore{},
		jobMessages:   &fakeJobMessageStore{},
		jobIterations: &fakeJobIterationStore{},
		features:      &fakeFeatureStore{},
		repositories:  &fakeRepositoryStore{},
		codeBranches:  &fakeCodeBranchStore{},
		codePRs:       &fakeCodePullRequestStore{},
		clients:       &fakeClientStore{},
	}
}

func (s *fakeStores) Jobs() store.JobStore                           { return s.jobs }
func (s *fakeStores) JobMessages() store.JobMessageStore             { return s.jobMessages }
func (s *fakeStores) JobIterations() store.JobIterationStore         { return s.jobIterations }
func (s *fakeStores) Features() store.FeatureStore                   { return s.features }
func (s *fakeStores) Repositories() store.RepositoryStore            { return s.repositories }
func (s *fakeStores) CodeBranches() store.CodeBranchStore            { return s.codeBranches }
func (s *fakeStores) CodePullRequests() store.CodePullRequestStore   { return s.codePRs }
func (s *fakeStores) Clients() store.ClientStore                     { return s.clients }

// fakeWorkspace fakes the git/PR plumbing so runner tests never shell out.
type fakeWorkspace struct {
	ensureBareRepoFn   func(ctx context.Context, repo model.Repository) (string, error)
	createWorktreeFn   func(ctx context.Context, repo model.Repository, job model.Job) (string, error)
	removedWorktrees   []string
	commitAndPushFn    func(ctx context.Context, worktree string, job model.Job) (bool, error)
	commitWithMessageFn func(ctx context.Context, worktree, message string) (workspace.CommitResult, error)
	createPullRequestFn func(ctx context.Context, repo model.Repository, job model.Job, worktree string) (*workspace.PullRequestResult, error)
}

func (w *fakeWorkspace) EnsureBareRepo(ctx context.Context, repo model.Repository) (string, error) {
	if w.ensureBareRepoFn != nil {
		return w.ensureBareRepoFn(ctx, repo)
	}
	return "/repos/" + repo.RepoName + ".git", nil
}

func (w *fakeWorkspace) CreateWorktree(ctx context.Context, repo model.Repository, job model.Job) (string, error) {
	if w.createWorktreeFn != nil {
		return w.createWorktreeFn(ctx, repo, job)
	}
	return "/worktrees/" + repo.RepoName, nil
}

func (w *fakeWorkspace) RemoveWorktree(ctx context.Context, repo model.Repository, path string) {
	w.removedWorktrees = append(w.removedWorktrees, path)
}

func (w *fakeWorkspace) CommitAndPush(ctx context.Context, worktree string, job model.Job) (bool, error) {
	if w.commitAndPushFn != nil {
		return w.commitAndPushFn(ctx, worktree, job)
	}
	return false, nil
}

func (w *fakeWorkspace) CommitWithMessage(ctx context.Context, worktree, message string) (workspace.CommitResult, error) {
	if w.commitWithMessageFn != nil {
		return w.commitWithMessageFn(ctx, worktree, message)
	}
	return workspace.CommitResult{}, nil
}

func (w *fakeWorkspace) CreatePullRequest(ctx context.Context, repo model.Repository, job model.Job, worktree string) (*workspace.PullRequestResult, error) {
	if w.createPullRequestFn != nil {
		return w.createPullRequestFn(ctx, repo, job, worktree)
	}
	return &workspace.PullRequestResult{URL: "https://example.invalid/pr/1", Number: 1}, nil
}

// fakeInvoker fakes the coder CLI's streaming invocation.
type fakeInvoker struct {
	runFn func(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error)
	calls []fakeInvokerCall
}

type fakeInvokerCall struct {
	JobID int64
	Args  []string
	Cwd   string
}

func (f *fakeInvoker) Run(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr cliinvoker.LineCallback) (cliinvoker.Result, error) {
	f.calls = append(f.calls, fakeInvokerCall{JobID: jobID, Args: args, Cwd: cwd})
	if onStdout != nil {
		onStdout("ok")
	}
	if f.runFn != nil {
		return f.runFn(ctx, jobID, args, cwd, env, onStdout, onStderr)
	}
	return cliinvoker.Result{ExitCode: 0}, nil
}

// fakeFeedback fakes the test/lint/typecheck pass.
type fakeFeedback struct {
	runFn func(ctx context.Context, worktree string, customCommands []string) feedback.Report
}

func (f *fakeFeedback) Run(ctx context.Context, worktree string, customCommands []string) feedback.Report {
	if f.runFn != nil {
		return f.runFn(ctx, worktree, customCommands)
	}
	return feedback.Report{Passed: true}
}

// fakeWake is a no-op WakePublisher.
type fakeWake struct {
	published int
}

func (w *fakeWake) Publish(ctx context.Context) { w.published++ }
