package sqlc

import "context"

type Repository struct {
	ID            int64
	ClientID      int64
	Provider      string
	OwnerName     string
	RepoName      string
	DefaultBranch string
	Url           string
}

func (q *Queries) GetRepository(ctx context.Context, id int64) (Repository, error) {
	var row Repository
	err := q.db.QueryRow(ctx, `
		SELECT id, client_id, provider, owner_name, repo_name, default_branch, url
		FROM code_repositories WHERE id = $1
	`, id).Scan(&row.ID, &row.ClientID, &row.Provider, &row.OwnerName, &row.RepoName, &row.DefaultBranch, &row.Url)
	return row, err
}

func (q *Queries) GetRepositoryByClientAndName(ctx context.Context, clientID int64, repoName string) (Repository, error) {
	var row Repository
	err := q.db.QueryRow(ctx, `
		SELECT id, client_id, provider, owner_name, repo_name, default_branch, url
		FROM code_repositories WHERE client_id = $1 AND repo_name = $2
	`, clientID, repoName).Scan(&row.ID, &row.ClientID, &row.Provider, &row.OwnerName, &row.RepoName, &row.DefaultBranch, &row.Url)
	return row, err
}

type CreateRepositoryParams struct {
	ID            int64
	ClientID      int64
	Provider      string
	OwnerName     string
	RepoName      string
	DefaultBranch string
	Url           string
}

func (q *Queries) CreateRepository(ctx context.Context, arg CreateRepositoryParams) (Repository, error) {
	var row Repository
	err := q.db.QueryRow(ctx, `
		INSERT INTO code_repositories (id, client_id, provider, owner_name, repo_name, default_branch, url)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, client_id, provider, owner_name, repo_name, default_branch, url
	`, arg.ID, arg.ClientID, arg.Provider, arg.OwnerName, arg.RepoName, arg.DefaultBranch, arg.Url).Scan(
		&row.ID, &row.ClientID, &row.Provider, &row.OwnerName, &row.RepoName, &row.DefaultBranch, &row.Url,
	)
	return row, err
}
