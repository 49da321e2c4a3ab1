package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CodeBranch struct {
	ID           int64
	RepositoryID int64
	Name         string
	CreatedAt    pgtype.Timestamptz
}

type UpsertCodeBranchParams struct {
	RepositoryID int64
	Name         string
}

func (q *Queries) UpsertCodeBranch(ctx context.Context, arg UpsertCodeBranchParams) (CodeBranch, error) {
	var row CodeBranch
	err := q.db.QueryRow(ctx, `
		INSERT INTO code_branches (repository_id, name, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (repository_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, repository_id, name, created_at
	`, arg.RepositoryID, arg.Name).Scan(&row.ID, &row.RepositoryID, &row.Name, &row.CreatedAt)
	return row, err
}

type CodePullRequest struct {
	ID           int64
	RepositoryID int64
	Number       int32
	Title        string
	Url          string
	FilesChanged *int32
	CreatedAt    pgtype.Timestamptz
}

type UpsertCodePullRequestParams struct {
	RepositoryID int64
	Number       int32
	Title        string
	Url          string
	FilesChanged *int32
}

func (q *Queries) UpsertCodePullRequest(ctx context.Context, arg UpsertCodePullRequestParams) (CodePullRequest, error) {
	var row CodePullRequest
	err := q.db.QueryRow(ctx, `
		INSERT INTO code_pull_requests (repository_id, number, title, url, files_changed, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (repository_id, number) DO UPDATE SET
			title = EXCLUDED.title, url = EXCLUDED.url, files_changed = EXCLUDED.files_changed
		RETURNING id, repository_id, number, title, url, files_changed, created_at
	`, arg.RepositoryID, arg.Number, arg.Title, arg.Url, arg.FilesChanged).Scan(
		&row.ID, &row.RepositoryID, &row.Number, &row.Title, &row.Url, &row.FilesChanged, &row.CreatedAt,
	)
	return row, err
}
