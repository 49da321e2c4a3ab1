package model

// Feature is an authoring-side aggregate owned externally; the core reads a
// subset of its columns and writes back Prd/SpecOutput/SpecPhase/workflow
// stage as spec and PRD work progresses.
type Feature struct {
	ID                     int64       `json:"id"`
	ClientID               int64       `json:"client_id"`
	Title                  string      `json:"title"`
	FunctionalityNotes     *string     `json:"functionality_notes,omitempty"`
	ClientContext          *string     `json:"client_context,omitempty"`
	FeatureTypeID          *int64      `json:"feature_type_id,omitempty"`
	Prd                    *Prd        `json:"prd,omitempty"`
	SpecOutput             *SpecOutput `json:"spec_output,omitempty"`
	SpecPhase              *string     `json:"spec_phase,omitempty"`
	FeatureWorkflowStageID *int64      `json:"feature_workflow_stage_id,omitempty"`
}
