package handler

import (
	"errors"
	"net/http"
	"time"

	"basegraph.app/relay/common/id"
	"basegraph.app/relay/internal/http/dto"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/runner"
	"basegraph.app/relay/internal/store"
	"github.com/gin-gonic/gin"
)

var validSpecPhases = map[model.SpecPhase]bool{
	model.SpecPhaseConstitution:   true,
	model.SpecPhaseSpec:           true,
	model.SpecPhaseClarifications: true,
	model.SpecPhasePlan:           true,
	model.SpecPhaseAnalysis:       true,
	model.SpecPhaseTasks:          true,
}

type SpecHandler struct {
	stores *store.Stores
	wake   Waker
}

func NewSpecHandler(stores *store.Stores, wake Waker) *SpecHandler {
	return &SpecHandler{stores: stores, wake: wake}
}

// StartPhase queues a spec job at the requested phase, used both to kick
// off the pipeline (phase=constitution) and to manually restart a later
// phase (e.g. after an analyze_failed halt).
func (h *SpecHandler) StartPhase(c *gin.Context) {
	var req dto.StartPhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phase := model.SpecPhase(req.Phase)
	if !validSpecPhases[phase] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase"})
		return
	}

	if _, err := h.stores.Features().GetByID(c.Request.Context(), req.FeatureID); err != nil {
		h.respondLookupError(c, err, "feature not found")
		return
	}

	branchName := req.BranchName
	if branchName == "" {
		branchName = "relay/spec-" + req.Phase
	}

	specPhase := string(phase)
	job := &model.Job{
		ID:           id.New(),
		ClientID:     req.ClientID,
		FeatureID:    &req.FeatureID,
		RepositoryID: req.RepositoryID,
		JobType:      model.JobTypeSpec,
		Status:       model.JobStatusQueued,
		Prompt:       req.Prompt,
		BranchName:   branchName,
		SpecPhase:    &specPhase,
		CreatedAt:    time.Now(),
	}

	if err := h.stores.Jobs().Create(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "creating spec job failed"})
		return
	}

	if h.wake != nil {
		h.wake.Publish(c.Request.Context())
	}

	c.JSON(http.StatusCreated, dto.ToJobResponse(job))
}

// SubmitClarification records a human's answer to one clarification and,
// once every outstanding clarification has a response, enqueues the plan
// phase directly rather than waiting for another CLI round on the
// clarifications phase.
func (h *SpecHandler) SubmitClarification(c *gin.Context) {
	featureID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feature id"})
		return
	}

	var req dto.ClarificationResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	feature, err := h.stores.Features().GetByID(ctx, featureID)
	if err != nil {
		h.respondLookupError(c, err, "feature not found")
		return
	}
	if feature.SpecOutput == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "feature has no spec output"})
		return
	}

	out := *feature.SpecOutput
	found := false
	now := time.Now()
	for i := range out.Clarifications {
		if out.Clarifications[i].ID == req.ClarificationID {
			response := req.Response
			out.Clarifications[i].Response = &response
			out.Clarifications[i].RespondedAt = &now
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "clarification not found"})
		return
	}

	if err := h.stores.Features().UpdateSpecOutput(ctx, featureID, &out); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persisting clarification response failed"})
		return
	}

	if runner.AllClarificationsAnswered(out) {
		next := runner.PhaseAfter(model.SpecPhaseClarifications)
		jobs, err := h.stores.Jobs().ListByFeature(ctx, featureID)
		var prev model.Job
		if err == nil && len(jobs) > 0 {
			prev = jobs[len(jobs)-1]
		} else {
			prev = model.Job{ClientID: feature.ClientID}
		}
		if next != "" {
			if err := runner.EnqueueSpecJob(ctx, h.stores, prev, featureID, next); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueuing next phase failed"})
				return
			}
			if h.wake != nil {
				h.wake.Publish(ctx)
			}
		}
	}

	c.JSON(http.StatusOK, dto.ToSpecOutputResponse(&out))
}

func (h *SpecHandler) GetSpecOutput(c *gin.Context) {
	featureID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feature id"})
		return
	}

	feature, err := h.stores.Features().GetByID(c.Request.Context(), featureID)
	if err != nil {
		h.respondLookupError(c, err, "feature not found")
		return
	}

	c.JSON(http.StatusOK, dto.ToSpecOutputResponse(feature.SpecOutput))
}

// ApproveSpec marks a feature's completed pipeline as approved by setting
// its workflow stage to tasksApprovedStage (distinct from the runner's
// "tasks_complete" code). It records no job message.
// The dashboard otherwise treats spec_complete the same as approved; this
// endpoint exists for workflows that gate further work on an explicit
// human sign-off.
func (h *SpecHandler) ApproveSpec(c *gin.Context) {
	featureID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feature id"})
		return
	}

	ctx := c.Request.Context()
	feature, err := h.stores.Features().GetByID(ctx, featureID)
	if err != nil {
		h.respondLookupError(c, err, "feature not found")
		return
	}
	if feature.SpecOutput == nil || feature.SpecOutput.Phase != model.SpecPhaseTasks {
		c.JSON(http.StatusConflict, gin.H{"error": "spec pipeline has not reached the tasks phase"})
		return
	}

	if err := h.stores.Features().UpdateWorkflowStage(ctx, featureID, tasksApprovedStage); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recording spec approval failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

// tasksApprovedStage is the externally-owned feature_workflow_stages id for
// a human-approved, tasks-complete spec.
const tasksApprovedStage = 109

func (h *SpecHandler) respondLookupError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
}
