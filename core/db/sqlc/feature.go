package sqlc

import "context"

// Feature is the subset of the externally-owned features table this module
// reads and writes back.
type Feature struct {
	ID                     int64
	ClientID               int64
	Title                  string
	FunctionalityNotes     *string
	ClientContext          *string
	FeatureTypeID          *int64
	Prd                    []byte
	SpecOutput             []byte
	SpecPhase              *string
	FeatureWorkflowStageID *int64
}

func (q *Queries) GetFeature(ctx context.Context, id int64) (Feature, error) {
	var row Feature
	err := q.db.QueryRow(ctx, `
		SELECT id, client_id, title, functionality_notes, client_context,
			feature_type_id, prd, spec_output, spec_phase, feature_workflow_stage_id
		FROM features WHERE id = $1
	`, id).Scan(
		&row.ID, &row.ClientID, &row.Title, &row.FunctionalityNotes, &row.ClientContext,
		&row.FeatureTypeID, &row.Prd, &row.SpecOutput, &row.SpecPhase, &row.FeatureWorkflowStageID,
	)
	return row, err
}

func (q *Queries) UpdateFeaturePrd(ctx context.Context, id int64, prd []byte) error {
	_, err := q.db.Exec(ctx, `UPDATE features SET prd = $2 WHERE id = $1`, id, prd)
	return err
}

func (q *Queries) UpdateFeatureSpecOutput(ctx context.Context, id int64, specOutput []byte, specPhase *string) error {
	_, err := q.db.Exec(ctx, `UPDATE features SET spec_output = $2, spec_phase = $3 WHERE id = $1`, id, specOutput, specPhase)
	return err
}

func (q *Queries) UpdateFeatureWorkflowStage(ctx context.Context, id int64, stageID int64) error {
	_, err := q.db.Exec(ctx, `UPDATE features SET feature_workflow_stage_id = $2 WHERE id = $1`, id, stageID)
	return err
}
