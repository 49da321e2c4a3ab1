package store

import (
	"context"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
)

type codeBranchStore struct {
	queries *sqlc.Queries
}

func newCodeBranchStore(queries *sqlc.Queries) CodeBranchStore {
	return &codeBranchStore{queries: queries}
}

func (s *codeBranchStore) Upsert(ctx context.Context, b *model.CodeBranch) (*model.CodeBranch, error) {
	row, err := s.queries.UpsertCodeBranch(ctx, sqlc.UpsertCodeBranchParams{
		RepositoryID: b.RepositoryID,
		Name:         b.Name,
	})
	if err != nil {
		return nil, err
	}
	return &model.CodeBranch{
		ID:           row.ID,
		RepositoryID: row.RepositoryID,
		Name:         row.Name,
		CreatedAt:    row.CreatedAt.Time,
	}, nil
}

type codePullRequestStore struct {
	queries *sqlc.Queries
}

func newCodePullRequestStore(queries *sqlc.Queries) CodePullRequestStore {
	return &codePullRequestStore{queries: queries}
}

func (s *codePullRequestStore) Upsert(ctx context.Context, pr *model.CodePullRequest) (*model.CodePullRequest, error) {
	row, err := s.queries.UpsertCodePullRequest(ctx, sqlc.UpsertCodePullRequestParams{
		RepositoryID: pr.RepositoryID,
		Number:       int32(pr.Number),
		Title:        pr.Title,
		Url:          pr.URL,
		FilesChanged: toInt32Ptr(pr.FilesChanged),
	})
	if err != nil {
		return nil, err
	}
	return &model.CodePullRequest{
		ID:           row.ID,
		RepositoryID: row.RepositoryID,
		Number:       int(row.Number),
		Title:        row.Title,
		URL:          row.Url,
		FilesChanged: toIntPtr(row.FilesChanged),
		CreatedAt:    row.CreatedAt.Time,
	}, nil
}
