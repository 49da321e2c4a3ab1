package store

import (
	"context"
	"errors"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
	"github.com/jackc/pgx/v5"
)

type clientStore struct {
	queries *sqlc.Queries
}

func newClientStore(queries *sqlc.Queries) ClientStore {
	return &clientStore{queries: queries}
}

func (s *clientStore) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	row, err := s.queries.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := &model.Client{
		ID:           row.ID,
		Name:         row.Name,
		Constitution: row.Constitution,
	}
	if row.ConstitutionGeneratedAt.Valid {
		t := row.ConstitutionGeneratedAt.Time
		c.ConstitutionGeneratedAt = &t
	}
	return c, nil
}

func (s *clientStore) UpdateConstitution(ctx context.Context, id int64, constitution string) error {
	return s.queries.UpdateClientConstitution(ctx, id, constitution)
}

type memberStore struct {
	queries *sqlc.Queries
}

func newMemberStore(queries *sqlc.Queries) MemberStore {
	return &memberStore{queries: queries}
}

func (s *memberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	row, err := s.queries.GetMember(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &model.Member{
		ID:       row.ID,
		ClientID: row.ClientID,
		Name:     row.Name,
		Email:    row.Email,
	}, nil
}
