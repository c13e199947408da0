package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/gasrunner/internal/application/orchestrator"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BatchSubmitRequest represents a batch submission request. Either
// Requests or Template with Count must be set.
type BatchSubmitRequest struct {
	Name     string                    `json:"name"`
	Mode     domain.ExecutionMode      `json:"mode" binding:"required"`
	Requests []domain.OperationRequest `json:"requests"`
	Template *orchestrator.Template    `json:"template"`
	Count    int                       `json:"count"`
}

// BatchSubmitResponse represents a batch submission response
type BatchSubmitResponse struct {
	BatchID     string    `json:"batch_id"`
	Status      string    `json:"status"`
	Requests    int       `json:"requests"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// failErr maps domain errors to HTTP statuses
func (s *Server) failErr(c *gin.Context, fallback int, code string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrExecutorClosed):
		s.fail(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	default:
		s.fail(c, fallback, code, err.Error())
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	healthy := true
	checks := gin.H{"orchestrator": "ok"}

	if s.parallel != nil {
		status := s.parallel.Health().GetStatus()
		checks["parallel"] = status
		healthy = healthy && status.Healthy
	}
	if s.serial != nil {
		checks["serial_queue_depth"] = s.serial.QueueDepth()
	}

	code, label := http.StatusOK, "healthy"
	if !healthy {
		code, label = http.StatusServiceUnavailable, "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    label,
		"timestamp": time.Now(),
		"checks":    checks,
	})
}

// handleGetPool returns the gas pool snapshot of the parallel executor
func (s *Server) handleGetPool(c *gin.Context) {
	if s.parallel == nil {
		s.fail(c, http.StatusServiceUnavailable, "EXECUTOR_NOT_AVAILABLE", "parallel executor is not configured")
		return
	}

	pool := s.parallel.Pool()
	c.JSON(http.StatusOK, gin.H{
		"stats":   pool.Stats(),
		"handles": pool.Handles(),
	})
}

// handleGetLanes returns every lane of the parallel executor
func (s *Server) handleGetLanes(c *gin.Context) {
	if s.parallel == nil {
		s.fail(c, http.StatusServiceUnavailable, "EXECUTOR_NOT_AVAILABLE", "parallel executor is not configured")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": s.parallel.Lanes(),
	})
}

// handleGetSerial returns the serial executor's gas coin and queue depth
func (s *Server) handleGetSerial(c *gin.Context) {
	if s.serial == nil {
		s.fail(c, http.StatusServiceUnavailable, "EXECUTOR_NOT_AVAILABLE", "serial executor is not configured")
		return
	}

	resp := gin.H{"queue_depth": s.serial.QueueDepth()}
	if coin, ok := s.serial.GasCoin(); ok {
		resp["gas_coin"] = coin
	}
	c.JSON(http.StatusOK, resp)
}

// handleSubmitBatch handles batch submission
func (s *Server) handleSubmitBatch(c *gin.Context) {
	var req BatchSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	spec := orchestrator.BatchSpec{Name: req.Name, Mode: req.Mode, Requests: req.Requests}

	switch {
	case req.Template != nil && len(req.Requests) > 0:
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", "set either requests or template, not both")
		return
	case req.Template != nil:
		reqs, err := orchestrator.BuildBatch(*req.Template, req.Count, nil)
		if err != nil {
			s.failErr(c, http.StatusBadRequest, "INVALID_REQUEST", err)
			return
		}
		spec.Requests = reqs
		if spec.Name == "" {
			spec.Name = req.Template.Name
		}
	}

	batchID, err := s.orchestrator.SubmitBatch(c.Request.Context(), spec)
	if err != nil {
		s.logger.Error("failed to submit batch", zap.Error(err))
		s.failErr(c, http.StatusUnprocessableEntity, "SUBMISSION_FAILED", err)
		return
	}

	c.JSON(http.StatusCreated, BatchSubmitResponse{
		BatchID:     batchID,
		Status:      string(domain.BatchStatusSubmitted),
		Requests:    len(spec.Requests),
		SubmittedAt: time.Now(),
	})
}

// handleListBatches lists stored batch ids
func (s *Server) handleListBatches(c *gin.Context) {
	ids, err := s.orchestrator.ListBatches(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list batches", zap.Error(err))
		s.failErr(c, http.StatusInternalServerError, "STORAGE_ERROR", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches": ids,
		"total":   len(ids),
	})
}

// handleGetBatch handles getting the full batch state
func (s *Server) handleGetBatch(c *gin.Context) {
	state, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.failErr(c, http.StatusInternalServerError, "STORAGE_ERROR", err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleGetResult returns the outcomes of a finished batch. With
// ?wait=true it blocks until the batch finishes or the client goes away.
func (s *Server) handleGetResult(c *gin.Context) {
	batchID := c.Param("id")

	var (
		state *domain.BatchState
		err   error
	)
	if c.Query("wait") == "true" {
		state, err = s.orchestrator.Wait(c.Request.Context(), batchID)
	} else {
		state, err = s.orchestrator.GetStatus(c.Request.Context(), batchID)
	}
	if err != nil {
		s.failErr(c, http.StatusInternalServerError, "STORAGE_ERROR", err)
		return
	}

	if !state.Status.IsTerminal() {
		s.fail(c, http.StatusConflict, "NOT_COMPLETED", "batch has not finished")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":     state.BatchID,
		"status":       state.Status,
		"summary":      state.Summary,
		"outcomes":     state.Outcomes,
		"error":        state.Error,
		"completed_at": state.CompletedAt,
	})
}

// handleCancelBatch handles batch cancellation
func (s *Server) handleCancelBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := s.orchestrator.CancelBatch(c.Request.Context(), batchID); err != nil {
		s.failErr(c, http.StatusConflict, "CANCELLATION_FAILED", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id":     batchID,
		"status":       "cancelling",
		"requested_at": time.Now(),
	})
}

// handleDeleteBatch removes a finished batch
func (s *Server) handleDeleteBatch(c *gin.Context) {
	if err := s.orchestrator.DeleteBatch(c.Request.Context(), c.Param("id")); err != nil {
		s.failErr(c, http.StatusConflict, "DELETE_FAILED", err)
		return
	}

	c.Status(http.StatusNoContent)
}
