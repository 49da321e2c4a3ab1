package model

// RepoProvider names the hosting platform a Repository lives on. Only GitLab
// is currently supported by the Workspace Manager's PR-creation path.
type RepoProvider string

const (
	RepoProviderGitLab RepoProvider = "gitlab"
)

// Repository is one client-owned git repository. One bare clone lives per
// RepoName in a host-local directory; worktrees are nested under
// <worktrees>/<repo_name>/<job_id>.
type Repository struct {
	ID            int64        `json:"id"`
	ClientID      int64        `json:"client_id"`
	Provider      RepoProvider `json:"provider"`
	OwnerName     string       `json:"owner_name"`
	RepoName      string       `json:"repo_name"`
	DefaultBranch string       `json:"default_branch"`
	URL           string       `json:"url"`
}
