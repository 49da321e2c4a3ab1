package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"basegraph.app/relay/common/id"
	"basegraph.app/relay/internal/http/dto"
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/store"
	"github.com/gin-gonic/gin"
)

// Canceller is implemented by the scheduler; narrowed here so the handler
// depends only on the one method it needs.
type Canceller interface {
	Cancel(ctx context.Context, jobID int64) error
}

// Waker is implemented by the dispatch wake-signal publisher.
type Waker interface {
	Publish(ctx context.Context)
}

type JobHandler struct {
	stores        *store.Stores
	scheduler     Canceller
	wake          Waker
	maxConcurrent int
}

func NewJobHandler(stores *store.Stores, scheduler Canceller, wake Waker, maxConcurrent int) *JobHandler {
	return &JobHandler{stores: stores, scheduler: scheduler, wake: wake, maxConcurrent: maxConcurrent}
}

var validJobTypes = map[model.JobType]bool{
	model.JobTypeCode:          true,
	model.JobTypeRalph:         true,
	model.JobTypePrdGeneration: true,
	model.JobTypeSpec:          true,
}

func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobType := model.JobTypeCode
	if req.JobType != "" {
		jobType = model.JobType(req.JobType)
	}
	if !validJobTypes[jobType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown jobType %q", req.JobType)})
		return
	}

	branchName := req.BranchName
	if branchName == "" {
		branchName = fmt.Sprintf("relay/job-%d", id.New())
	}

	job := &model.Job{
		ID:                id.New(),
		ClientID:          req.ClientID,
		FeatureID:         req.FeatureID,
		RepositoryID:      req.RepositoryID,
		CreatedByMemberID: req.CreatedByMemberID,
		JobType:           jobType,
		PrdMode:           req.PrdMode,
		Status:            model.JobStatusQueued,
		Prompt:            req.Prompt,
		BranchName:        branchName,
		Title:             req.Title,
		MaxIterations:     req.MaxIterations,
		CompletionPromise: req.CompletionPromise,
		FeedbackCommands:  req.FeedbackCommands,
		CreatedAt:         time.Now(),
	}

	if err := h.stores.Jobs().Create(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "creating job failed"})
		return
	}

	if h.wake != nil {
		h.wake.Publish(c.Request.Context())
	}

	c.JSON(http.StatusCreated, dto.ToJobResponse(job))
}

func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.stores.Jobs().GetByID(c.Request.Context(), jobID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	messages, err := h.stores.JobMessages().ListByJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing job messages failed"})
		return
	}

	resp := dto.JobDetailResponse{JobResponse: dto.ToJobResponse(job)}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, dto.ToJobMessageResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) ListByFeature(c *gin.Context) {
	featureID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feature id"})
		return
	}

	jobs, err := h.stores.Jobs().ListByFeature(c.Request.Context(), featureID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing jobs failed"})
		return
	}

	resp := make([]*dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, dto.ToJobResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) Cancel(c *gin.Context) {
	jobID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.scheduler.Cancel(c.Request.Context(), jobID); err != nil {
		h.respondLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Retry re-queues a failed or cancelled job as a brand-new job row carrying
// the same prompt, type, and target; the original row is left untouched as
// history.
func (h *JobHandler) Retry(c *gin.Context) {
	jobID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	original, err := h.stores.Jobs().GetByID(c.Request.Context(), jobID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	if original.Status != model.JobStatusFailed && original.Status != model.JobStatusCancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "only failed or cancelled jobs can be retried"})
		return
	}

	retry := &model.Job{
		ID:                id.New(),
		ClientID:          original.ClientID,
		FeatureID:         original.FeatureID,
		RepositoryID:      original.RepositoryID,
		CreatedByMemberID: original.CreatedByMemberID,
		JobType:           original.JobType,
		PrdMode:           original.PrdMode,
		Status:            model.JobStatusQueued,
		Prompt:            original.Prompt,
		BranchName:        original.BranchName,
		Title:             original.Title,
		MaxIterations:     original.MaxIterations,
		CompletionPromise: original.CompletionPromise,
		FeedbackCommands:  original.FeedbackCommands,
		Prd:               original.Prd,
		SpecPhase:         original.SpecPhase,
		SpecOutput:        original.SpecOutput,
		PrdProgress:       original.PrdProgress,
		CreatedAt:         time.Now(),
	}

	if err := h.stores.Jobs().Create(c.Request.Context(), retry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "creating retry job failed"})
		return
	}

	if h.wake != nil {
		h.wake.Publish(c.Request.Context())
	}

	c.JSON(http.StatusCreated, dto.ToJobResponse(retry))
}

func (h *JobHandler) QueueStatus(c *gin.Context) {
	running, err := h.stores.Jobs().CountRunning(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "counting running jobs failed"})
		return
	}

	queued, err := h.stores.Jobs().ListQueued(c.Request.Context(), 1<<20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing queued jobs failed"})
		return
	}

	c.JSON(http.StatusOK, dto.QueueStatusResponse{
		Running:       running,
		Queued:        len(queued),
		MaxConcurrent: h.maxConcurrent,
	})
}

func (h *JobHandler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
}

func parseID(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}
