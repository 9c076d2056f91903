package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carebridge/carebridge/internal/pkg/errcode"
	"github.com/carebridge/carebridge/internal/pkg/response"
	"github.com/carebridge/carebridge/internal/service"
)

type ChatHandler struct {
	rag *service.RagService
}

func NewChatHandler(rag *service.RagService) *ChatHandler {
	return &ChatHandler{rag: rag}
}

type searchRequest struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	PatientID  string `json:"patient_id"`
	Department string `json:"department"`
}

func (h *ChatHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.rag.Search(c.Request.Context(), currentUser(c), req.Query, req.Limit,
		service.SearchFilters{PatientID: req.PatientID, Department: req.Department})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, results)
}

type askRequest struct {
	Question   string `json:"question"`
	PatientID  string `json:"patient_id"`
	Department string `json:"department"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.rag.Ask(c.Request.Context(), currentUser(c), req.Question,
		service.SearchFilters{PatientID: req.PatientID, Department: req.Department})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
