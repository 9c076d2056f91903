package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/carebridge/carebridge/internal/pkg/errcode"
	"github.com/carebridge/carebridge/internal/pkg/response"
	"github.com/carebridge/carebridge/internal/service"
)

type DocumentHandler struct {
	documents     *service.DocumentService
	maxUploadSize int64
}

func NewDocumentHandler(documents *service.DocumentService, maxUploadSize int64) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	return &DocumentHandler{documents: documents, maxUploadSize: maxUploadSize}
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	req := &service.ListDocumentsRequest{
		DocumentType: c.Query("document_type"),
		Department:   c.Query("department"),
		PatientID:    c.Query("patient_id"),
		Offset:       parseUint(c.Query("offset")),
		Limit:        parseUint(c.Query("limit")),
	}
	docs, err := h.documents.List(c.Request.Context(), currentUser(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Update(c *gin.Context) {
	var req service.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Upload accepts a multipart text file plus metadata form fields and
// stores it as a document.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "file field required")
		return
	}
	if fileHeader.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalid, "file too large")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		handleError(c, err)
		return
	}
	defer file.Close()

	isSensitive, _ := strconv.ParseBool(c.PostForm("is_sensitive"))
	req := &service.CreateDocumentRequest{
		Title:        c.PostForm("title"),
		DocumentType: c.PostForm("document_type"),
		PatientID:    c.PostForm("patient_id"),
		Department:   c.PostForm("department"),
		IsSensitive:  isSensitive,
	}
	doc, err := h.documents.Upload(c.Request.Context(), currentUser(c),
		fileHeader.Filename, file, fileHeader.Size, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) EmbeddingStatuses(c *gin.Context) {
	req := &service.ListDocumentsRequest{
		DocumentType: c.Query("document_type"),
		Department:   c.Query("department"),
		PatientID:    c.Query("patient_id"),
		Offset:       parseUint(c.Query("offset")),
		Limit:        parseUint(c.Query("limit")),
	}
	statuses, err := h.documents.ListEmbeddingStatuses(c.Request.Context(), currentUser(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, statuses)
}

func (h *DocumentHandler) RegenerateEmbeddings(c *gin.Context) {
	count, err := h.documents.RegenerateEmbeddings(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chunks": count})
}

func (h *DocumentHandler) EmbeddingStatus(c *gin.Context) {
	status, err := h.documents.EmbeddingStatus(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}
