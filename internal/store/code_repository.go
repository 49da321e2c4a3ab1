package store

import (
	"context"
	"errors"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
	"github.com/jackc/pgx/v5"
)

type repositoryStore struct {
	queries *sqlc.Queries
}

func newRepositoryStore(queries *sqlc.Queries) RepositoryStore {
	return &repositoryStore{queries: queries}
}

func (s *repositoryStore) GetByID(ctx context.Context, id int64) (*model.Repository, error) {
	row, err := s.queries.GetRepository(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toRepositoryModel(row), nil
}

func (s *repositoryStore) GetByClientAndName(ctx context.Context, clientID int64, repoName string) (*model.Repository, error) {
	row, err := s.queries.GetRepositoryByClientAndName(ctx, clientID, repoName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toRepositoryModel(row), nil
}

func (s *repositoryStore) Create(ctx context.Context, repo *model.Repository) error {
	row, err := s.queries.CreateRepository(ctx, sqlc.CreateRepositoryParams{
		ID:            repo.ID,
		ClientID:      repo.ClientID,
		Provider:      string(repo.Provider),
		OwnerName:     repo.OwnerName,
		RepoName:      repo.RepoName,
		DefaultBranch: repo.DefaultBranch,
		Url:           repo.URL,
	})
	if err != nil {
		return err
	}
	*repo = *toRepositoryModel(row)
	return nil
}

func toRepositoryModel(row sqlc.Repository) *model.Repository {
	return &model.Repository{
		ID:            row.ID,
		ClientID:      row.ClientID,
		Provider:      model.RepoProvider(row.Provider),
		OwnerName:     row.OwnerName,
		RepoName:      row.RepoName,
		DefaultBranch: row.DefaultBranch,
		URL:           row.Url,
	}
}
