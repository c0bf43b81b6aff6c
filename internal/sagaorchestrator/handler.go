// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package sagaorchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/orchestrator"
)

// Handler exposes the saga management HTTP API.
type Handler struct {
	orch   *orchestrator.Orchestrator
	sm     saga.StateManager
	logger *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(orch *orchestrator.Orchestrator, sm saga.StateManager) *Handler {
	return &Handler{orch: orch, sm: sm, logger: logger.GetLogger()}
}

// RegisterRoutes installs the API routes on the router group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/saga")
	{
		api.GET("/instances", h.listInstances)
		api.GET("/instances/:id", h.getInstance)
		api.POST("/instances/:id/fail", h.failInstance)
		api.POST("/start/user-onboarding", h.startUserOnboarding)
		api.POST("/start/payment-processing", h.startPaymentProcessing)
	}
}

// sagaResponse is the API shape of a saga instance.
type sagaResponse struct {
	ID               string          `json:"id"`
	SagaType         string          `json:"saga_type"`
	Status           string          `json:"status"`
	CurrentStepIndex int             `json:"current_step_index"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

// stepResponse is the API shape of a step attempt.
type stepResponse struct {
	ID           string `json:"id"`
	StepName     string `json:"step_name"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toSagaResponse(in *saga.Instance) sagaResponse {
	return sagaResponse{
		ID:               in.ID,
		SagaType:         in.SagaType,
		Status:           in.Status.String(),
		CurrentStepIndex: in.CurrentStepIndex,
		Payload:          in.Payload,
		CreatedAt:        in.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:        in.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func toStepResponses(steps []*saga.StepInstance) []stepResponse {
	out := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, stepResponse{
			ID:           s.ID,
			StepName:     s.StepName,
			Status:       s.Status.String(),
			ErrorMessage: s.ErrorMessage,
			CreatedAt:    s.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return out
}

func (h *Handler) listInstances(c *gin.Context) {
	instances, err := h.sm.GetAllSagaInstances(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]sagaResponse, 0, len(instances))
	for _, in := range instances {
		out = append(out, toSagaResponse(in))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getInstance(c *gin.Context) {
	instance, steps, err := h.sm.GetSagaInstanceByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instance": toSagaResponse(instance),
		"steps":    toStepResponses(steps),
	})
}

func (h *Handler) failInstance(c *gin.Context) {
	if err := h.orch.ForceFail(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": saga.StatusFailed.String()})
}

func (h *Handler) startUserOnboarding(c *gin.Context) {
	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.startSaga(c, SagaTypeUserOnboarding, req)
}

func (h *Handler) startPaymentProcessing(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.startSaga(c, SagaTypePaymentProcessing, req)
}

func (h *Handler) startSaga(c *gin.Context, sagaType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	instance, err := h.orch.StartSaga(c.Request.Context(), sagaType, raw)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toSagaResponse(instance))
}

// writeError maps engine errors to HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case saga.IsSagaNotFound(err):
		status = http.StatusNotFound
	case saga.IsValidation(err):
		status = http.StatusBadRequest
	case saga.IsIllegalState(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
