package workspace_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/relay/internal/cliexec"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/workspace"
)

var _ = Describe("Manager", func() {
	var (
		runner *fakeCommandRunner
		mgr    *workspace.Manager
		repo   model.Repository
	)

	BeforeEach(func() {
		runner = newFakeCommandRunner()
		runner.fallback = func(cliexec.Command) ([]byte, error) { return []byte(""), nil }

		mgr = workspace.NewManager(workspace.Config{
			ReposDir:      GinkgoT().TempDir(),
			WorktreesDir:  GinkgoT().TempDir(),
			Runner:        runner,
			HostingCLIBin: "gh",
		})

		repo = model.Repository{ID: 1, RepoName: "widgets", DefaultBranch: "main", Provider: model.RepoProviderGitLab}
	})

	Describe("EnsureBareRepo", func() {
		It("clones a bare mirror then fetches it", func() {
			_, err := mgr.EnsureBareRepo(context.Background(), repo)
			Expect(err).NotTo(HaveOccurred())

			var cmds []string
			for _, c := range runner.calls {
				cmds = append(cmds, c.Name+" "+joinArgs(c.Args))
			}
			Expect(cmds).To(ContainElement(ContainSubstring("clone --bare")))
			Expect(cmds).To(ContainElement(ContainSubstring("fetch origin")))
		})

		It("surfaces a wrapped error when the clone fails", func() {
			runner.on("git clone", func(cliexec.Command) ([]byte, error) {
				return []byte("fatal: repository not found"), assertErr
			})

			_, err := mgr.EnsureBareRepo(context.Background(), repo)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cloning bare repo"))
		})
	})

	Describe("CreateWorktree", func() {
		It("branches off origin/default when the branch doesn't exist yet", func() {
			runner.on("git show-ref", func(cliexec.Command) ([]byte, error) { return nil, assertErr })

			job := model.Job{ID: 5, BranchName: "agent/5"}
			path, err := mgr.CreateWorktree(context.Background(), repo, job)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).NotTo(BeEmpty())

			var sawNewBranch bool
			for _, c := range runner.calls {
				if c.Name == "git" && containsAll(c.Args, "worktree", "add", "-b", "agent/5") {
					sawNewBranch = true
				}
			}
			Expect(sawNewBranch).To(BeTrue())
		})

		It("reuses an existing branch's worktree without -b", func() {
			runner.on("git show-ref", func(cliexec.Command) ([]byte, error) { return nil, nil })
			runner.on("git worktree list", func(cliexec.Command) ([]byte, error) { return []byte(""), nil })

			job := model.Job{ID: 6, BranchName: "agent/6"}
			_, err := mgr.CreateWorktree(context.Background(), repo, job)
			Expect(err).NotTo(HaveOccurred())

			var sawExistingBranch bool
			for _, c := range runner.calls {
				if c.Name == "git" && containsAll(c.Args, "worktree", "add") && !containsAll(c.Args, "-b") {
					sawExistingBranch = true
				}
			}
			Expect(sawExistingBranch).To(BeTrue())
		})
	})

	Describe("CommitWithMessage", func() {
		It("returns HasChanges=false and makes no commit when the worktree is clean", func() {
			runner.on("git status", func(cliexec.Command) ([]byte, error) { return []byte(""), nil })

			result, err := mgr.CommitWithMessage(context.Background(), "/tmp/wt", "message")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HasChanges).To(BeFalse())

			for _, c := range runner.calls {
				Expect(containsAll(c.Args, "commit")).To(BeFalse())
			}
		})

		It("stages, commits, and returns the new SHA when there are changes", func() {
			runner.on("git status", func(cliexec.Command) ([]byte, error) { return []byte(" M file.go\n"), nil })
			runner.on("git rev-parse HEAD", func(cliexec.Command) ([]byte, error) { return []byte("deadbeef\n"), nil })

			result, err := mgr.CommitWithMessage(context.Background(), "/tmp/wt", "feat: change")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HasChanges).To(BeTrue())
			Expect(result.SHA).To(Equal("deadbeef"))
		})
	})

	Describe("CommitAndPush", func() {
		It("pushes the branch only when the commit produced changes", func() {
			runner.on("git status", func(cliexec.Command) ([]byte, error) { return []byte(" M file.go\n"), nil })
			runner.on("git rev-parse HEAD", func(cliexec.Command) ([]byte, error) { return []byte("abc123\n"), nil })

			job := model.Job{BranchName: "agent/7"}
			committed, err := mgr.CommitAndPush(context.Background(), "/tmp/wt", job)
			Expect(err).NotTo(HaveOccurred())
			Expect(committed).To(BeTrue())

			var pushed bool
			for _, c := range runner.calls {
				if containsAll(c.Args, "push", "-u", "origin", "agent/7") {
					pushed = true
				}
			}
			Expect(pushed).To(BeTrue())
		})

		It("does nothing when the worktree is already clean", func() {
			runner.on("git status", func(cliexec.Command) ([]byte, error) { return []byte(""), nil })

			job := model.Job{BranchName: "agent/8"}
			committed, err := mgr.CommitAndPush(context.Background(), "/tmp/wt", job)
			Expect(err).NotTo(HaveOccurred())
			Expect(committed).To(BeFalse())
		})
	})

	Describe("CreatePullRequest", func() {
		It("parses the PR number from the hosting CLI's last output line", func() {
			runner.on("gh pr create", func(cliexec.Command) ([]byte, error) {
				return []byte("Creating pull request\nhttps://gitlab.example/widgets/-/merge_requests/42\n"), nil
			})

			job := model.Job{BranchName: "agent/9", Title: strPtr("Add widgets")}
			result, err := mgr.CreatePullRequest(context.Background(), repo, job, "/tmp/wt")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Number).To(Equal(42))
			Expect(result.Title).To(Equal("Add widgets"))
			// No GitLab token configured, so the enrichment call is skipped.
			Expect(result.FilesChanged).To(BeNil())
		})
	})
})

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func containsAll(haystack []string, needles ...string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func strPtr(s string) *string { return &s }

var assertErr = &workspaceTestError{"command failed"}

type workspaceTestError struct{ msg string }

func (e *workspaceTestError) Error() string { return e.msg }
