package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carebridge/carebridge/internal/pkg/errcode"
	"github.com/carebridge/carebridge/internal/pkg/response"
	"github.com/carebridge/carebridge/internal/service"
)

type PatientHandler struct {
	patients *service.PatientService
}

func NewPatientHandler(patients *service.PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

func (h *PatientHandler) Create(c *gin.Context) {
	var req service.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	patient, err := h.patients.Create(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, patient)
}

func (h *PatientHandler) List(c *gin.Context) {
	patients, err := h.patients.List(c.Request.Context(), currentUser(c),
		c.Query("department"), parseUint(c.Query("offset")), parseUint(c.Query("limit")))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, patients)
}

func (h *PatientHandler) Get(c *gin.Context) {
	patient, err := h.patients.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, patient)
}

func (h *PatientHandler) Update(c *gin.Context) {
	var req service.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	patient, err := h.patients.Update(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, patient)
}

func (h *PatientHandler) Deactivate(c *gin.Context) {
	if err := h.patients.Deactivate(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deactivated": true})
}
