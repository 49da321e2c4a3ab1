package dto

import (
	"time"

	"basegraph.app/relay/internal/model"
)

// CreateJobRequest is the ingress body for POST /api/v1/jobs. JobType
// defaults to "code" (one-shot) when omitted.
type CreateJobRequest struct {
	ClientID          int64    `json:"clientId" binding:"required"`
	FeatureID         *int64   `json:"featureId,omitempty"`
	RepositoryID      *int64   `json:"repositoryId,omitempty"`
	CreatedByMemberID *int64   `json:"createdByMemberId,omitempty"`
	JobType           string   `json:"jobType,omitempty"`
	PrdMode           bool     `json:"prdMode,omitempty"`
	Prompt            string   `json:"prompt" binding:"required"`
	BranchName        string   `json:"branchName,omitempty"`
	Title             *string  `json:"title,omitempty"`
	MaxIterations     *int     `json:"maxIterations,omitempty"`
	CompletionPromise *string  `json:"completionPromise,omitempty"`
	FeedbackCommands  []string `json:"feedbackCommands,omitempty"`
}

type JobResponse struct {
	ID                int64      `json:"id,string"`
	ClientID          int64      `json:"clientId,string"`
	FeatureID         *int64     `json:"featureId,omitempty,string"`
	RepositoryID      *int64     `json:"repositoryId,omitempty,string"`
	JobType           string     `json:"jobType"`
	PrdMode           bool       `json:"prdMode"`
	Status            string     `json:"status"`
	Prompt            string     `json:"prompt"`
	BranchName        string     `json:"branchName"`
	Title             *string    `json:"title,omitempty"`
	SpecPhase         *string    `json:"specPhase,omitempty"`
	ExitCode          *int       `json:"exitCode,omitempty"`
	PRURL             *string    `json:"prUrl,omitempty"`
	PRNumber          *int       `json:"prNumber,omitempty"`
	FilesChanged      *int       `json:"filesChanged,omitempty"`
	Error             *string    `json:"error,omitempty"`
	CompletionReason  *string    `json:"completionReason,omitempty"`
	CurrentIteration  *int       `json:"currentIteration,omitempty"`
	TotalIterations   *int       `json:"totalIterations,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

func ToJobResponse(j *model.Job) *JobResponse {
	return &JobResponse{
		ID:               j.ID,
		ClientID:         j.ClientID,
		FeatureID:        j.FeatureID,
		RepositoryID:     j.RepositoryID,
		JobType:          string(j.JobType),
		PrdMode:          j.PrdMode,
		Status:           string(j.Status),
		Prompt:           j.Prompt,
		BranchName:       j.BranchName,
		Title:            j.Title,
		SpecPhase:        j.SpecPhase,
		ExitCode:         j.ExitCode,
		PRURL:            j.PRURL,
		PRNumber:         j.PRNumber,
		FilesChanged:     j.FilesChanged,
		Error:            j.Error,
		CompletionReason: j.CompletionReason,
		CurrentIteration: j.CurrentIteration,
		TotalIterations:  j.TotalIterations,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}

type JobMessageResponse struct {
	ID        int64     `json:"id,string"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToJobMessageResponse(m model.JobMessage) JobMessageResponse {
	return JobMessageResponse{
		ID:        m.ID,
		Kind:      string(m.Kind),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type JobDetailResponse struct {
	*JobResponse
	Messages []JobMessageResponse `json:"messages"`
}

type QueueStatusResponse struct {
	Running       int `json:"running"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// StartPhaseRequest begins the spec pipeline at a given phase for a
// feature; used for both the initial constitution kickoff and a manual
// phase restart.
type StartPhaseRequest struct {
	ClientID     int64   `json:"clientId" binding:"required"`
	FeatureID    int64   `json:"featureId" binding:"required"`
	RepositoryID *int64  `json:"repositoryId,omitempty"`
	Phase        string  `json:"phase" binding:"required"`
	Prompt       string  `json:"prompt"`
	BranchName   string  `json:"branchName,omitempty"`
}

type ClarificationResponseRequest struct {
	ClarificationID string `json:"clarificationId" binding:"required"`
	Response        string `json:"response" binding:"required"`
}

type SpecOutputResponse struct {
	Phase          string                  `json:"phase,omitempty"`
	SpecMode       bool                    `json:"specMode,omitempty"`
	Constitution   *string                 `json:"constitution,omitempty"`
	Spec           *model.SpecDocument     `json:"spec,omitempty"`
	Clarifications []model.Clarification   `json:"clarifications,omitempty"`
	Plan           *string                 `json:"plan,omitempty"`
	Analysis       *model.Analysis         `json:"analysis,omitempty"`
	Tasks          []model.Task            `json:"tasks,omitempty"`
}

func ToSpecOutputResponse(out *model.SpecOutput) *SpecOutputResponse {
	if out == nil {
		return &SpecOutputResponse{}
	}
	return &SpecOutputResponse{
		Phase:          string(out.Phase),
		SpecMode:       out.SpecMode,
		Constitution:   out.Constitution,
		Spec:           out.Spec,
		Clarifications: out.Clarifications,
		Plan:           out.Plan,
		Analysis:       out.Analysis,
		Tasks:          out.Tasks,
	}
}
