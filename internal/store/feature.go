package store

import (
	"context"
	"encoding/json"
	"errors"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
	"github.com/jackc/pgx/v5"
)

type featureStore struct {
	queries *sqlc.Queries
}

func newFeatureStore(queries *sqlc.Queries) FeatureStore {
	return &featureStore{queries: queries}
}

func (s *featureStore) GetByID(ctx context.Context, id int64) (*model.Feature, error) {
	row, err := s.queries.GetFeature(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toFeatureModel(row)
}

func (s *featureStore) UpdatePrd(ctx context.Context, id int64, prd *model.Prd) error {
	prdJSON, err := marshalOptional(prd)
	if err != nil {
		return err
	}
	return s.queries.UpdateFeaturePrd(ctx, id, prdJSON)
}

func (s *featureStore) UpdateSpecOutput(ctx context.Context, id int64, out *model.SpecOutput) error {
	outJSON, err := marshalOptional(out)
	if err != nil {
		return err
	}
	var phase *string
	if out != nil && out.Phase != "" {
		p := string(out.Phase)
		phase = &p
	}
	return s.queries.UpdateFeatureSpecOutput(ctx, id, outJSON, phase)
}

func (s *featureStore) UpdateWorkflowStage(ctx context.Context, id int64, stageID int64) error {
	return s.queries.UpdateFeatureWorkflowStage(ctx, id, stageID)
}

func toFeatureModel(row sqlc.Feature) (*model.Feature, error) {
	f := &model.Feature{
		ID:                     row.ID,
		ClientID:               row.ClientID,
		Title:                  row.Title,
		FunctionalityNotes:     row.FunctionalityNotes,
		ClientContext:          row.ClientContext,
		FeatureTypeID:          row.FeatureTypeID,
		SpecPhase:              row.SpecPhase,
		FeatureWorkflowStageID: row.FeatureWorkflowStageID,
	}
	if len(row.Prd) > 0 {
		var prd model.Prd
		if err := json.Unmarshal(row.Prd, &prd); err != nil {
			return nil, err
		}
		f.Prd = &prd
	}
	if len(row.SpecOutput) > 0 {
		var specOutput model.SpecOutput
		if err := json.Unmarshal(row.SpecOutput, &specOutput); err != nil {
			return nil, err
		}
		f.SpecOutput = &specOutput
	}
	return f, nil
}
