package model

import "time"

// CodeBranch is an idempotent provenance row keyed by (repository, name),
// created after a job pushes a branch.
type CodeBranch struct {
	ID           int64     `json:"id"`
	RepositoryID int64     `json:"repository_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}
