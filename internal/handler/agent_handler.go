package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carebridge/carebridge/internal/pkg/errcode"
	"github.com/carebridge/carebridge/internal/pkg/response"
	"github.com/carebridge/carebridge/internal/service"
)

type AgentHandler struct {
	agents *service.AgentService
}

func NewAgentHandler(agents *service.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

type agentQueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *AgentHandler) Query(c *gin.Context) {
	var req agentQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.agents.Query(c.Request.Context(), currentUser(c), req.SessionID, req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
