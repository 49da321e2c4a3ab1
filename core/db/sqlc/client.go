package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Client struct {
	ID                      int64
	Name                    string
	Constitution            *string
	ConstitutionGeneratedAt pgtype.Timestamptz
}

func (q *Queries) GetClient(ctx context.Context, id int64) (Client, error) {
	var row Client
	err := q.db.QueryRow(ctx, `
		SELECT id, name, constitution, constitution_generated_at FROM clients WHERE id = $1
	`, id).Scan(&row.ID, &row.Name, &row.Constitution, &row.ConstitutionGeneratedAt)
	return row, err
}

func (q *Queries) UpdateClientConstitution(ctx context.Context, id int64, constitution string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE clients SET constitution = $2, constitution_generated_at = now() WHERE id = $1
	`, id, constitution)
	return err
}

type Member struct {
	ID       int64
	ClientID int64
	Name     string
	Email    string
}

func (q *Queries) GetMember(ctx context.Context, id int64) (Member, error) {
	var row Member
	err := q.db.QueryRow(ctx, `
		SELECT id, client_id, name, email FROM members WHERE id = $1
	`, id).Scan(&row.ID, &row.ClientID, &row.Name, &row.Email)
	return row, err
}
