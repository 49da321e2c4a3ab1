// Package workspace owns bare-repo/worktree lifecycle for agent jobs: one
// bare clone per repository, one worktree per job, push/PR plumbing on top.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"basegraph.app/relay/internal/cliexec"
	"basegraph.app/relay/internal/model"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Manager provisions bare clones and worktrees under two host-local
// directories and drives the hosting CLI for PR creation.
type Manager struct {
	reposDir      string
	worktreesDir  string
	runner        cliexec.CommandRunner
	hostingCLIBin string
	gitLabToken   string
	gitLabBaseURL string
}

type Config struct {
	ReposDir      string
	WorktreesDir  string
	Runner        cliexec.CommandRunner
	HostingCLIBin string
	GitLabToken   string
	GitLabBaseURL string
}

func NewManager(cfg Config) *Manager {
	runner := cfg.Runner
	if runner == nil {
		runner = cliexec.ExecCommandRunner{}
	}
	return &Manager{
		reposDir:      cfg.ReposDir,
		worktreesDir:  cfg.WorktreesDir,
		runner:        runner,
		hostingCLIBin: cfg.HostingCLIBin,
		gitLabToken:   cfg.GitLabToken,
		gitLabBaseURL: cfg.GitLabBaseURL,
	}
}

func (m *Manager) barePath(repo model.Repository) string {
	return filepath.Join(m.reposDir, repo.RepoName+".git")
}

func (m *Manager) worktreePath(repo model.Repository, jobID int64) string {
	return filepath.Join(m.worktreesDir, repo.RepoName, strconv.FormatInt(jobID, 10))
}

func (m *Manager) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := m.runner.Run(ctx, cliexec.Command{Name: "git", Args: args, Dir: dir})
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return string(out), nil
}

// EnsureBareRepo idempotently clones a bare mirror of repo into reposDir and
// fetches it fresh.
func (m *Manager) EnsureBareRepo(ctx context.Context, repo model.Repository) (string, error) {
	bare := m.barePath(repo)
	if _, err := os.Stat(bare); os.IsNotExist(err) {
		if err := os.MkdirAll(m.reposDir, 0o755); err != nil {
			return "", fmt.Errorf("creating repos dir: %w", err)
		}
		remote := fmt.Sprintf("git@%s:%s/%s.git", repoHost(repo), repo.OwnerName, repo.RepoName)
		if _, err := m.runGit(ctx, m.reposDir, "clone", "--bare", remote, bare); err != nil {
			return "", fmt.Errorf("cloning bare repo: %w", err)
		}
	}
	if err := m.FetchOrigin(ctx, repo); err != nil {
		return "", err
	}
	return bare, nil
}

// FetchOrigin refreshes every branch ref in the bare clone.
func (m *Manager) FetchOrigin(ctx context.Context, repo model.Repository) error {
	bare := m.barePath(repo)
	_, err := m.runGit(ctx, bare, "fetch", "origin", "+refs/heads/*:refs/heads/*", "--prune")
	if err != nil {
		return fmt.Errorf("fetching origin: %w", err)
	}
	return nil
}

// CreateWorktree creates (or reuses) the job's worktree, checking out
// job.BranchName — from the existing branch if one exists in the bare repo,
// otherwise newly branched off origin/default.
func (m *Manager) CreateWorktree(ctx context.Context, repo model.Repository, job model.Job) (string, error) {
	bare := m.barePath(repo)
	path := m.worktreePath(repo, job.ID)

	if _, err := m.runGit(ctx, bare, "worktree", "prune"); err != nil {
		return "", err
	}

	branchExists, err := m.refExists(ctx, bare, "refs/heads/"+job.BranchName)
	if err != nil {
		return "", err
	}

	if branchExists {
		if err := m.evictBranchWorktree(ctx, bare, job.BranchName); err != nil {
			return "", err
		}
		if _, err := m.runGit(ctx, bare, "worktree", "add", path, job.BranchName); err != nil {
			return "", fmt.Errorf("adding worktree for existing branch: %w", err)
		}
	} else {
		base := "origin/" + repo.DefaultBranch
		if _, err := m.runGit(ctx, bare, "worktree", "add", "-b", job.BranchName, path, base); err != nil {
			return "", fmt.Errorf("adding worktree for new branch: %w", err)
		}
	}

	return path, nil
}

func (m *Manager) refExists(ctx context.Context, bare, ref string) (bool, error) {
	out, err := m.runner.Run(ctx, cliexec.Command{Name: "git", Args: []string{"show-ref", "--verify", "--quiet", ref}, Dir: bare})
	if err != nil {
		// git show-ref exits non-zero when the ref is absent; treat any
		// failure here as "not found" rather than propagating.
		_ = out
		return false, nil
	}
	return true, nil
}

func (m *Manager) evictBranchWorktree(ctx context.Context, bare, branch string) error {
	out, err := m.runGit(ctx, bare, "worktree", "list", "--porcelain")
	if err != nil {
		return err
	}
	var currentPath string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			currentPath = strings.TrimPrefix(line, "worktree ")
		}
		if line == "branch refs/heads/"+branch && currentPath != "" {
			m.runGit(ctx, bare, "worktree", "remove", "--force", currentPath) //nolint:errcheck
			m.runGit(ctx, bare, "worktree", "prune")                         //nolint:errcheck
			return nil
		}
	}
	return nil
}

// RemoveWorktree best-effort removes a worktree, never returning a fatal
// error: callers run this in a deferred cleanup on every exit path.
func (m *Manager) RemoveWorktree(ctx context.Context, repo model.Repository, path string) {
	bare := m.barePath(repo)
	if _, err := m.runGit(ctx, bare, "worktree", "remove", "--force", path); err != nil {
		os.RemoveAll(path)
	}
	m.runGit(ctx, bare, "worktree", "prune") //nolint:errcheck
}

// CommitResult is what CommitWithMessage returns.
type CommitResult struct {
	SHA        string
	HasChanges bool
}

// CommitAndPush stages all changes, commits (using job.Title or a default
// message) if there is anything to commit, then pushes the branch.
// Returns whether a commit was made.
func (m *Manager) CommitAndPush(ctx context.Context, worktree string, job model.Job) (bool, error) {
	message := "agent: automated changes"
	if job.Title != nil && *job.Title != "" {
		message = *job.Title
	}
	result, err := m.CommitWithMessage(ctx, worktree, message)
	if err != nil {
		return false, err
	}
	if !result.HasChanges {
		return false, nil
	}
	return true, m.PushBranch(ctx, worktree, job.BranchName)
}

// CommitWithMessage stages and commits with the caller-supplied message if
// there are changes, without pushing.
func (m *Manager) CommitWithMessage(ctx context.Context, worktree, message string) (CommitResult, error) {
	changed, err := m.HasChanges(ctx, worktree)
	if err != nil {
		return CommitResult{}, err
	}
	if !changed {
		return CommitResult{}, nil
	}

	if _, err := m.runGit(ctx, worktree, "add", "-A"); err != nil {
		return CommitResult{}, err
	}
	if _, err := m.runGit(ctx, worktree, "commit", "-m", message); err != nil {
		return CommitResult{}, err
	}
	out, err := m.runGit(ctx, worktree, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{HasChanges: true}, err
	}
	return CommitResult{SHA: strings.TrimSpace(out), HasChanges: true}, nil
}

// PushBranch pushes worktree's current branch to origin, setting upstream.
func (m *Manager) PushBranch(ctx context.Context, worktree, branch string) error {
	_, err := m.runGit(ctx, worktree, "push", "-u", "origin", branch)
	return err
}

// HasChanges reports whether the worktree has uncommitted changes.
func (m *Manager) HasChanges(ctx context.Context, worktree string) (bool, error) {
	out, err := m.runGit(ctx, worktree, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// PullRequestResult is what CreatePullRequest returns.
type PullRequestResult struct {
	URL          string
	Number       int
	Title        string
	FilesChanged *int
}

// CreatePullRequest delegates PR creation to the hosting CLI, then
// best-effort enriches the files-changed count via the GitLab API when the
// hosting CLI doesn't report one and the repo is GitLab-hosted.
func (m *Manager) CreatePullRequest(ctx context.Context, repo model.Repository, job model.Job, worktree string) (*PullRequestResult, error) {
	title := "agent: automated changes"
	if job.Title != nil && *job.Title != "" {
		title = *job.Title
	}

	out, err := m.runner.Run(ctx, cliexec.Command{
		Name: m.hostingCLIBin,
		Args: []string{"pr", "create", "--head", job.BranchName, "--base", repo.DefaultBranch, "--title", title, "--fill"},
		Dir:  worktree,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w: %s", err, out)
	}

	url := strings.TrimSpace(lastLine(string(out)))
	number := parsePRNumber(url)

	result := &PullRequestResult{URL: url, Number: number, Title: title}

	if repo.Provider == model.RepoProviderGitLab {
		if filesChanged, err := m.gitLabFilesChanged(ctx, repo, number); err == nil {
			result.FilesChanged = filesChanged
		}
	}

	return result, nil
}

func (m *Manager) gitLabFilesChanged(ctx context.Context, repo model.Repository, mrNumber int) (*int, error) {
	if m.gitLabToken == "" {
		return nil, fmt.Errorf("no gitlab token configured")
	}
	client, err := gitlab.NewClient(m.gitLabToken, gitlab.WithBaseURL(strings.TrimSuffix(m.gitLabBaseURL, "/")+"/api/v4"))
	if err != nil {
		return nil, err
	}
	project := repo.OwnerName + "/" + repo.RepoName
	changes, _, err := client.MergeRequests.GetMergeRequestChanges(project, mrNumber, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	n := len(changes.Changes)
	return &n, nil
}

func repoHost(repo model.Repository) string {
	switch repo.Provider {
	case model.RepoProviderGitLab:
		return "gitlab.com"
	default:
		return "gitlab.com"
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func parsePRNumber(url string) int {
	idx := strings.LastIndex(url, "/")
	if idx == -1 || idx == len(url)-1 {
		return 0
	}
	n, _ := strconv.Atoi(url[idx+1:])
	return n
}
