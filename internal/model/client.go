package model

import "time"

// Client is the tenant aggregate every Job, Repository, and Feature belongs
// to. Constitution is an optional cached project-constitution document,
// regenerated by the spec pipeline's first phase.
type Client struct {
	ID                      int64      `json:"id"`
	Name                    string     `json:"name"`
	Constitution            *string    `json:"constitution,omitempty"`
	ConstitutionGeneratedAt *time.Time `json:"constitution_generated_at,omitempty"`
}
