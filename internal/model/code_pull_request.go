package model

import "time"

// CodePullRequest is an idempotent provenance row keyed by (repository,
// number), created after a job opens a PR via the hosting CLI.
type CodePullRequest struct {
	ID           int64     `json:"id"`
	RepositoryID int64     `json:"repository_id"`
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	FilesChanged *int      `json:"files_changed,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
